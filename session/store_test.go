// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-webapp/oidc"
)

func TestMemoryStore(t *testing.T) {
	TestStore(t, NewMemoryStore())
}

func TestMemoryStore_Save(t *testing.T) {
	ctx := context.Background()
	t.Run("nil", func(t *testing.T) {
		assert.ErrorIs(t, NewMemoryStore().Save(ctx, nil), oidc.ErrNilParameter)
	})
	t.Run("empty-id", func(t *testing.T) {
		assert.ErrorIs(t, NewMemoryStore().Save(ctx, &Session{}), oidc.ErrInvalidParameter)
	})
	t.Run("isolated-copies", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemoryStore()
		sess := TestSession(t, "alice", time.Hour)
		require.NoError(s.Save(ctx, sess))
		sess.Claims.Email = "changed@example.com"

		got, err := s.Load(ctx, sess.ID)
		require.NoError(err)
		assert.Equal("alice@example.com", got.Claims.Email)
	})
	t.Run("drops-past-max-lifetime", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		s := NewMemoryStore(WithNow(func() time.Time { return now }))
		old := TestSession(t, "old", time.Minute)
		require.NoError(s.Save(ctx, old))

		now = now.Add(time.Hour)
		require.NoError(s.Save(ctx, TestSession(t, "new", 2*time.Hour)))
		assert.Equal(1, s.Len())
	})
}

func TestMarshal(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	sess := TestSession(t, "alice", time.Hour)

	b, err := Marshal(sess)
	require.NoError(err)
	assert.Contains(string(b), "test-access-token", "stored tokens are not redacted")

	got, err := Unmarshal(b)
	require.NoError(err)
	assert.Equal(sess.Tokens.RefreshToken, got.Tokens.RefreshToken)
	assert.Equal(sess.Claims.Subject, got.Claims.Subject)

	_, err = Marshal(nil)
	assert.ErrorIs(err, oidc.ErrNilParameter)
	_, err = Unmarshal([]byte("{"))
	assert.Error(err)
}

func TestSession_Accessors(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	s := &Session{Subject: "sub-1", UserInfo: oidc.UserInfo{"email": "info@example.com"}, ExpiresAt: now}
	assert.Equal("sub-1", s.Username())
	assert.Equal("info@example.com", s.Email())
	assert.True(s.IsExpired(now))
	assert.False(s.IsExpired(now.Add(-time.Second)))

	s.Claims = &oidc.Claims{Subject: "sub-1", PreferredUsername: "manzolo", Email: "manzolo@keycloak.org"}
	assert.Equal("manzolo", s.Username())
	assert.Equal("manzolo@keycloak.org", s.Email())
}
