// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/hashicorp/oidc-webapp/sdk/id"
)

// DefaultIDLength is the length of an ID generated by NewID without a prefix:
// 32 random bytes, base64url encoded without padding.
const DefaultIDLength = 43

// NewID generates an ID with an optional prefix.  The ID generated is suitable
// for a login attempt's state or nonce and for session identifiers: it carries
// 256 bits of entropy. Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "oidc.NewID"
	opts := getIDOpts(opt...)
	newID, err := id.New(opts.withPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	return newID, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed
// in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
