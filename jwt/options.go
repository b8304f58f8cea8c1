// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "time"

// DefaultMinRefreshInterval is the minimum time between two fetches of a
// remote key set triggered by unknown keys.
const DefaultMinRefreshInterval = 5 * time.Second

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

type keySetOptions struct {
	withMinRefreshInterval time.Duration
}

func keySetDefaults() keySetOptions {
	return keySetOptions{
		withMinRefreshInterval: DefaultMinRefreshInterval,
	}
}

func getKeySetOpts(opt ...Option) keySetOptions {
	opts := keySetDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type validatorOptions struct {
	withNormalizedAudiences bool
}

func validatorDefaults() validatorOptions {
	return validatorOptions{}
}

func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithMinRefreshInterval sets the minimum time between key set refetches
// caused by a token signed with an unknown key.  Zero refetches on every
// unknown key.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*keySetOptions); ok {
			o.withMinRefreshInterval = d
		}
	}
}

// WithNormalizedAudiences enables removing the trailing slash (if it exists) from all bound audiences
// before comparing against the aud claims.
func WithNormalizedAudiences() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *validatorOptions:
			v.withNormalizedAudiences = true
		}
	}
}
