// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-webapp/oidc"
)

func TestNewManager(t *testing.T) {
	t.Run("nil-store", func(t *testing.T) {
		_, err := NewManager(nil)
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
	})
	t.Run("defaults", func(t *testing.T) {
		m, err := NewManager(NewMemoryStore())
		require.NoError(t, err)
		assert.Equal(t, oidc.DefaultAttemptTTL, m.TTL())
	})
	t.Run("with-ttl", func(t *testing.T) {
		m, err := NewManager(NewMemoryStore(), WithTTL(time.Minute), WithTTL(-1))
		require.NoError(t, err)
		assert.Equal(t, time.Minute, m.TTL())
	})
}

func TestManager_Create(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	m, err := NewManager(s, WithTTL(5*time.Minute), WithNow(func() time.Time { return now }))
	require.NoError(err)

	a, err := m.Create(ctx, "https://evil.example.com/steal")
	require.NoError(err)
	assert.NoError(a.Validate())
	assert.NotEqual(a.State, a.Nonce)
	assert.Equal(DefaultReturnTo, a.ReturnTo)
	assert.Equal(now, a.CreatedAt)
	assert.Equal(now.Add(5*time.Minute), a.ExpiresAt)
	assert.Equal(1, s.Len())

	b, err := m.Create(ctx, "/profile")
	require.NoError(err)
	assert.Equal("/profile", b.ReturnTo)
	assert.NotEqual(a.State, b.State)
	assert.NotEqual(a.Verifier, b.Verifier)
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, *oidc.Attempt) error { return f.err }
func (f failingStore) Take(context.Context, string) (*oidc.Attempt, error) {
	return nil, f.err
}

func TestManager_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, err := NewManager(NewMemoryStore())
		require.NoError(err)
		a, err := m.Create(ctx, "/token")
		require.NoError(err)

		got, err := m.Consume(ctx, a.State)
		require.NoError(err)
		assert.Equal(a.Nonce, got.Nonce)
		assert.Equal(a.Verifier, got.Verifier)
		assert.Equal("/token", got.ReturnTo)

		_, err = m.Consume(ctx, a.State)
		assert.ErrorIs(err, oidc.ErrInvalidOrExpiredState)
	})
	t.Run("unknown", func(t *testing.T) {
		m, err := NewManager(NewMemoryStore())
		require.NoError(t, err)
		_, err = m.Consume(ctx, "unknown999")
		assert.ErrorIs(t, err, oidc.ErrInvalidOrExpiredState)
	})
	t.Run("empty", func(t *testing.T) {
		m, err := NewManager(failingStore{err: errors.New("must not be called")})
		require.NoError(t, err)
		_, err = m.Consume(ctx, "")
		assert.ErrorIs(t, err, oidc.ErrInvalidOrExpiredState)
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		s := NewMemoryStore()
		m, err := NewManager(s, WithTTL(time.Minute), WithNow(func() time.Time { return now }))
		require.NoError(err)
		a, err := m.Create(ctx, "")
		require.NoError(err)

		now = now.Add(2 * time.Minute)
		_, err = m.Consume(ctx, a.State)
		assert.ErrorIs(err, oidc.ErrInvalidOrExpiredState)
		assert.Equal(0, s.Len(), "an expired attempt is still removed")
	})
	t.Run("store-error", func(t *testing.T) {
		boom := errors.New("boom")
		m, err := NewManager(failingStore{err: boom})
		require.NoError(t, err)
		_, err = m.Consume(ctx, "abc123")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, oidc.ErrInvalidOrExpiredState)
	})
}
