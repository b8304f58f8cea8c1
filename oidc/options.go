// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "time"

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

// WithExpirySkew provides an optional expiry skew duration for: Attempt,
// TokenSet
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *attemptOptions:
			v.withExpirySkew = d
		case *tokenOptions:
			v.withExpirySkew = d
		}
	}
}

// WithNow provides an optional function that returns the current time, for:
// Attempt, TokenSet, Config
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *attemptOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		case *configOptions:
			v.withNowFunc = now
		}
	}
}

// WithPrefix provides an optional prefix for a new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
