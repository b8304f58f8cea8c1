// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxProviderTries is the number of attempts made for a provider call that
// fails transiently: the original call plus one retry.
const maxProviderTries = 2

// callProvider runs fn with a per-attempt timeout and retries once when the
// failure is transient.  A transient failure that persists is returned
// wrapped with ErrProviderUnreachable; any other error is returned as is.
func callProvider[T any](ctx context.Context, c *Config, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBackoff()

	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()
		v, err := fn(callCtx)
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, d time.Duration) {
		c.logger().Warn("provider call failed, retrying", "op", op, "backoff", d, "error", err)
	}
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxProviderTries),
		backoff.WithNotify(notify),
	)
	if err != nil && isTransient(err) {
		var zero T
		return zero, fmt.Errorf("%s: %w: %w", op, ErrProviderUnreachable, err)
	}
	return v, err
}

// isTransient reports whether err is a network, deadline or server failure
// worth one more try.  A cancelled caller context is never transient.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// statusError is an unexpected HTTP status from a provider endpoint.  Server
// errors are transient.
type statusError struct {
	url    string
	status string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.url, e.status)
}
