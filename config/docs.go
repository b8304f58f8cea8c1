// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package config loads the web application's and the resource server's
configuration from the environment.

Optional .env files are loaded first; variables already set in the
environment win over the files.  The result is validated as a whole and
every problem is reported at once:

	cfg, err := config.Load(".env")
	if err != nil {
		// err lists every invalid or missing variable
	}
	oc, err := cfg.OIDCConfig(logger)

A loaded Config is treated as immutable and is passed explicitly to the
components that need it.
*/
package config
