// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// Store persists sessions.  Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or replaces the session keyed by its ID.  The store may
	// drop it once its MaxExpiresAt has passed.
	Save(ctx context.Context, s *Session) error

	// Update replaces the stored session only when its Version is still
	// version.  It returns ErrSessionNotFound when the session is gone and
	// ErrSessionChanged when it has another version.  It never creates a
	// session.
	Update(ctx context.Context, s *Session, version uint64) error

	// Load returns the session for id or ErrSessionNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// Delete removes the session for id.  Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// DeleteVersion removes the session for id only when its Version is
	// version.  A missing or changed session is not an error.
	DeleteVersion(ctx context.Context, id string, version uint64) error
}

// MemoryStore is a Store kept in process memory, suitable for a single
// instance only.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.  Supported options: WithNow
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getStoreOpts(opt...)
	now := opts.withNowFunc
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: map[string]*Session{},
		now:      now,
	}
}

// Save implements Store.  Sessions past their MaxExpiresAt are dropped.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	const op = "MemoryStore.Save"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	if s.ID == "" {
		return fmt.Errorf("%s: session id is empty: %w", op, oidc.ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, v := range m.sessions {
		if !v.MaxExpiresAt.IsZero() && !now.Before(v.MaxExpiresAt) {
			delete(m.sessions, k)
		}
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, s *Session, version uint64) error {
	const op = "MemoryStore.Update"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	switch {
	case !ok:
		return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	case cur.Version != version:
		return fmt.Errorf("%s: %w", op, ErrSessionChanged)
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(s), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteVersion implements Store.
func (m *MemoryStore) DeleteVersion(_ context.Context, id string, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id]; ok && cur.Version == version {
		delete(m.sessions, id)
	}
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
