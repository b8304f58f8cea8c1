// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package middleware

import "github.com/hashicorp/go-hclog"

// DefaultLoginPath is where unauthenticated browsers are sent.
const DefaultLoginPath = "/login"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type authOptions struct {
	withLoginPath string
	withLogger    hclog.Logger
}

func authDefaults() authOptions {
	return authOptions{
		withLoginPath: DefaultLoginPath,
		withLogger:    hclog.NewNullLogger(),
	}
}

func getAuthOpts(opt ...Option) authOptions {
	opts := authDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLoginPath sets the login initiation path.
func WithLoginPath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok && p != "" {
			o.withLoginPath = p
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
