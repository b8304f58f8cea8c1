// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// Manager creates and consumes login attempts.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger hclog.Logger
	now    func() time.Time
}

// NewManager returns a Manager backed by s.  Supported options: WithTTL,
// WithLogger, WithNow
func NewManager(s Store, opt ...Option) (*Manager, error) {
	const op = "attempt.NewManager"
	if s == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getManagerOpts(opt...)
	now := opts.withNowFunc
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  s,
		ttl:    opts.withTTL,
		logger: opts.withLogger,
		now:    now,
	}, nil
}

// TTL returns how long attempts created by the manager stay valid.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create allocates and stores a new attempt.  returnTo is kept only when
// it's a local path, see SafeReturnTo.
func (m *Manager) Create(ctx context.Context, returnTo string) (*oidc.Attempt, error) {
	const op = "Manager.Create"
	a, err := oidc.NewAttempt(m.ttl, oidc.WithNow(m.now), oidc.WithReturnTo(SafeReturnTo(returnTo)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.store.Put(ctx, a); err != nil {
		return nil, fmt.Errorf("%s: unable to store attempt: %w", op, err)
	}
	return a, nil
}

// Consume removes and returns the attempt for state.  An unknown, already
// consumed or expired state results in oidc.ErrInvalidOrExpiredState, and the
// three are not told apart.
func (m *Manager) Consume(ctx context.Context, state string) (*oidc.Attempt, error) {
	const op = "Manager.Consume"
	if state == "" {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrInvalidOrExpiredState)
	}
	a, err := m.store.Take(ctx, state)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrInvalidOrExpiredState)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to read attempt: %w", op, err)
	}
	if a == nil || a.State != state || a.IsExpired(oidc.WithNow(m.now)) {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrInvalidOrExpiredState)
	}
	return a, nil
}
