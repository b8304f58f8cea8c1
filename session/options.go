// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultMaxLifetime bounds a session's lifetime, refreshes included.
	DefaultMaxLifetime = 8 * time.Hour

	// DefaultCookieName is the name of the session cookie.
	DefaultCookieName = "oidc_webapp_session"
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
	withMaxLifetime time.Duration
	withLogger      hclog.Logger
	withNowFunc     func() time.Time
	withRefresher   Refresher
}

func managerDefaults() managerOptions {
	return managerOptions{
		withMaxLifetime: DefaultMaxLifetime,
		withLogger:      hclog.NewNullLogger(),
	}
}

func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type storeOptions struct {
	withNowFunc func() time.Time
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeOptions{}
	ApplyOpts(&opts, opt...)
	return opts
}

type cookieOptions struct {
	withSecure      bool
	withPath        string
	withSameSite    http.SameSite
	withBlockKey    []byte
	withMaxLifetime time.Duration
}

func cookieDefaults() cookieOptions {
	return cookieOptions{
		withSecure:      true,
		withPath:        "/",
		withSameSite:    http.SameSiteLaxMode,
		withMaxLifetime: DefaultMaxLifetime,
	}
}

func getCookieOpts(opt ...Option) cookieOptions {
	opts := cookieDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithMaxLifetime bounds how long a session may live, refreshes included,
// for: Manager, Cookies.  Non-positive values are ignored.
func WithMaxLifetime(d time.Duration) Option {
	return func(o interface{}) {
		if d <= 0 {
			return
		}
		switch v := o.(type) {
		case *managerOptions:
			v.withMaxLifetime = d
		case *cookieOptions:
			v.withMaxLifetime = d
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

// WithRefresher enables renewing expired sessions with their refresh_token.
func WithRefresher(r Refresher) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok {
			o.withRefresher = r
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
		case *storeOptions:
			v.withNowFunc = now
		}
	}
}

// WithSecure sets the cookie's Secure attribute.  It defaults to true and
// should only be disabled for local development over plain http.
func WithSecure(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withSecure = secure
		}
	}
}

// WithPath sets the cookie's Path attribute.
func WithPath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && p != "" {
			o.withPath = p
		}
	}
}

// WithSameSite sets the cookie's SameSite attribute.  It defaults to Lax,
// since the callback arrives as a top level navigation from the provider.
func WithSameSite(s http.SameSite) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withSameSite = s
		}
	}
}

// WithBlockKey enables encrypting the cookie value as well as signing it.
// The key must be 16, 24 or 32 bytes.
func WithBlockKey(k []byte) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withBlockKey = k
		}
	}
}
