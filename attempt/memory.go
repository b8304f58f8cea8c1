// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// MemoryStore is a Store kept in process memory.  It only works for a single
// instance, since the callback has to reach the process that served the
// login.  Expired attempts are dropped whenever a new one is put.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]oidc.Attempt
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.  Supported options: WithNow
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getMemoryOpts(opt...)
	now := opts.withNowFunc
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		attempts: map[string]oidc.Attempt{},
		now:      now,
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, a *oidc.Attempt) error {
	const op = "MemoryStore.Put"
	if a == nil {
		return fmt.Errorf("%s: attempt is nil: %w", op, oidc.ErrNilParameter)
	}
	if a.State == "" {
		return fmt.Errorf("%s: state is empty: %w", op, oidc.ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.attempts {
		if !v.ExpiresAt.After(now) {
			delete(s.attempts, k)
		}
	}
	s.attempts[a.State] = *a
	return nil
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, state string) (*oidc.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.attempts, state)
	return &a, nil
}

// Len returns the number of stored attempts, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
