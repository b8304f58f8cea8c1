// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"context"
	"errors"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// ErrNotFound is returned by a Store when there's no attempt for a state.
var ErrNotFound = errors.New("login attempt not found")

// Store persists login attempts.  Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores the attempt keyed by its State until its ExpiresAt.
	Put(ctx context.Context, a *oidc.Attempt) error

	// Take removes and returns the attempt for state in a single atomic
	// operation.  It returns ErrNotFound when there's no such attempt.
	Take(ctx context.Context, state string) (*oidc.Attempt, error)
}
