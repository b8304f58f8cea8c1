// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
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

type handlerOptions struct {
	withLogger            hclog.Logger
	withFetchUserInfo     bool
	withResourceServerURL string
	withHTTPClient        *http.Client
}

func handlerDefaults() handlerOptions {
	return handlerOptions{
		withLogger:        hclog.NewNullLogger(),
		withFetchUserInfo: true,
	}
}

func getHandlerOpts(opt ...Option) handlerOptions {
	opts := handlerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithFetchUserInfo sets whether the callback fetches the provider's
// userinfo.  Defaults to true.
func WithFetchUserInfo(fetch bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withFetchUserInfo = fetch
		}
	}
}

// WithResourceServerURL mounts /call-protected-api, which calls the
// resource server's /protected-resource at base.
func WithResourceServerURL(base string) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withResourceServerURL = base
		}
	}
}

// WithHTTPClient provides the client used to call the resource server.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && c != nil {
			o.withHTTPClient = c
		}
	}
}
