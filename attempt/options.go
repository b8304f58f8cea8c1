// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/oidc"
)

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

type managerOptions struct {
	withTTL     time.Duration
	withLogger  hclog.Logger
	withNowFunc func() time.Time
}

func managerDefaults() managerOptions {
	return managerOptions{
		withTTL:    oidc.DefaultAttemptTTL,
		withLogger: hclog.NewNullLogger(),
	}
}

func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type memoryOptions struct {
	withNowFunc func() time.Time
}

func getMemoryOpts(opt ...Option) memoryOptions {
	opts := memoryOptions{}
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTTL sets how long an attempt stays valid.  Non-positive values are
// ignored.
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && d > 0 {
			o.withTTL = d
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional function that returns the current time, for:
// Manager, MemoryStore
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *managerOptions:
			v.withNowFunc = now
		case *memoryOptions:
			v.withNowFunc = now
		}
	}
}
