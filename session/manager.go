// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/sdk/id"
)

// Refresher redeems a refresh_token for new tokens.  *oidc.Provider
// implements it.
type Refresher interface {
	Refresh(ctx context.Context, rt oidc.RefreshToken, prev *oidc.Claims) (*oidc.TokenSet, *oidc.Claims, error)
}

// Manager governs the lifetime of sessions.
type Manager struct {
	store       Store
	maxLifetime time.Duration
	refresher   Refresher
	logger      hclog.Logger
	now         func() time.Time

	// refreshGroup collapses concurrent refreshes of one session within
	// this process; Store.Update guards against other instances.
	refreshGroup singleflight.Group
}

// NewManager returns a Manager backed by s.  Supported options:
// WithMaxLifetime, WithRefresher, WithLogger, WithNow
func NewManager(s Store, opt ...Option) (*Manager, error) {
	const op = "session.NewManager"
	if s == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getManagerOpts(opt...)
	now := opts.withNowFunc
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:       s,
		maxLifetime: opts.withMaxLifetime,
		refresher:   opts.withRefresher,
		logger:      opts.withLogger,
		now:         now,
	}, nil
}

// Create stores a new session for a user who completed a token exchange.
// The identifier is random and unrelated to any token.  info may be nil.
func (m *Manager) Create(ctx context.Context, claims *oidc.Claims, tokens *oidc.TokenSet, info oidc.UserInfo) (*Session, error) {
	const op = "Manager.Create"
	switch {
	case claims == nil:
		return nil, fmt.Errorf("%s: claims are nil: %w", op, oidc.ErrNilParameter)
	case tokens == nil:
		return nil, fmt.Errorf("%s: tokens are nil: %w", op, oidc.ErrNilParameter)
	case claims.Subject == "":
		return nil, fmt.Errorf("%s: subject is empty: %w", op, oidc.ErrInvalidParameter)
	}
	sessionID, err := oidc.NewID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate session id: %w", op, err)
	}
	now := m.now()
	s := &Session{
		ID:           sessionID,
		Handle:       id.NewHandle("s"),
		Subject:      claims.Subject,
		Claims:       claims.Copy(),
		UserInfo:     info,
		Tokens:       tokens,
		IssuedAt:     now,
		MaxExpiresAt: now.Add(m.maxLifetime),
		Version:      1,
	}
	s.ExpiresAt = expiresAt(s.MaxExpiresAt, claims, tokens)
	if !s.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%s: tokens are already expired: %w", op, oidc.ErrExpiredToken)
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("%s: unable to save session: %w", op, err)
	}
	m.logger.Debug("session created", "session", s.Handle, "subject", s.Subject, "expires_at", s.ExpiresAt)
	return s, nil
}

// Load returns the session for sessionID.  An unknown identifier results in
// ErrSessionNotFound.  An expired session is renewed when a Refresher is
// configured and the session holds a refresh_token; otherwise, or when the
// renewal fails, it's destroyed and ErrSessionNotFound joined with
// ErrSessionExpired is returned.  A session renewed concurrently by another
// request is returned rather than destroyed.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Session, error) {
	const op = "Manager.Load"
	if sessionID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	s, err := m.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to load session: %w", op, err)
	}
	if !s.IsExpired(m.now()) {
		return s, nil
	}
	if m.refresher != nil && s.Tokens != nil && s.Tokens.RefreshToken != "" {
		v, err, _ := m.refreshGroup.Do(sessionID, func() (interface{}, error) {
			return m.Refresh(ctx, s)
		})
		if err == nil {
			return copySession(v.(*Session)), nil
		}
		m.logger.Info("session refresh failed", "session", s.Handle, "error", err)
		if cur, ok := m.renewedElsewhere(ctx, s); ok {
			return cur, nil
		}
	}
	if err := m.store.DeleteVersion(ctx, sessionID, s.Version); err != nil {
		m.logger.Error("unable to delete expired session", "session", s.Handle, "error", err)
	}
	m.logger.Debug("session expired", "session", s.Handle)
	return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionNotFound, ErrSessionExpired)
}

// renewedElsewhere returns the stored session when it has been renewed since
// s was read and is still valid.
func (m *Manager) renewedElsewhere(ctx context.Context, s *Session) (*Session, bool) {
	cur, err := m.store.Load(ctx, s.ID)
	if err != nil || cur.Version == s.Version || cur.IsExpired(m.now()) {
		return nil, false
	}
	return cur, true
}

// Peek returns the stored session for sessionID without checking its expiry
// or renewing it.  An unknown identifier results in ErrSessionNotFound.
func (m *Manager) Peek(ctx context.Context, sessionID string) (*Session, error) {
	const op = "Manager.Peek"
	if sessionID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	s, err := m.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to load session: %w", op, err)
	}
	return s, nil
}

// Refresh renews s with its refresh_token and stores the result under the
// same identifier.  The renewed session still ends no later than its
// MaxExpiresAt.  The store is only updated while it still holds s: a
// session destroyed meanwhile results in ErrSessionNotFound, and one
// renewed meanwhile in ErrSessionChanged.
func (m *Manager) Refresh(ctx context.Context, s *Session) (*Session, error) {
	const op = "Manager.Refresh"
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	case m.refresher == nil:
		return nil, fmt.Errorf("%s: refresh is not enabled: %w", op, oidc.ErrInvalidParameter)
	case s.Tokens == nil || s.Tokens.RefreshToken == "":
		return nil, fmt.Errorf("%s: session has no refresh_token: %w", op, oidc.ErrInvalidParameter)
	}
	now := m.now()
	if !now.Before(s.MaxExpiresAt) {
		return nil, fmt.Errorf("%s: session reached its maximum lifetime: %w", op, ErrSessionExpired)
	}
	tokens, claims, err := m.refresher.Refresh(ctx, s.Tokens.RefreshToken, s.Claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	renewed := copySession(s)
	renewed.Tokens = tokens
	renewed.Claims = claims
	renewed.ExpiresAt = expiresAt(s.MaxExpiresAt, claims, tokens)
	renewed.Version = s.Version + 1
	if !renewed.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%s: refreshed tokens are already expired: %w", op, ErrSessionExpired)
	}
	if err := m.store.Update(ctx, renewed, s.Version); err != nil {
		return nil, fmt.Errorf("%s: unable to update session: %w", op, err)
	}
	m.logger.Debug("session refreshed", "session", renewed.Handle, "expires_at", renewed.ExpiresAt)
	return renewed, nil
}

// Destroy removes the session.  It's idempotent.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	const op = "Manager.Destroy"
	if sessionID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// expiresAt is the earliest of limit, the id_token's expiry and the
// access_token's expiry.  Zero expiries are ignored.
func expiresAt(limit time.Time, claims *oidc.Claims, tokens *oidc.TokenSet) time.Time {
	exp := limit
	if claims != nil && !claims.Expiry.IsZero() && claims.Expiry.Before(exp) {
		exp = claims.Expiry
	}
	if tokens != nil && !tokens.Expiry.IsZero() && tokens.Expiry.Before(exp) {
		exp = tokens.Expiry
	}
	return exp
}
