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

// TestSession returns a valid, unsaved session for subject that expires in
// d.
func TestSession(t *testing.T, subject string, d time.Duration) *Session {
	t.Helper()
	require := require.New(t)
	sessionID, err := oidc.NewID()
	require.NoError(err)
	now := time.Now().Truncate(time.Second)
	return &Session{
		ID:      sessionID,
		Handle:  "s_test",
		Subject: subject,
		Claims: &oidc.Claims{
			Issuer:            "https://issuer.example.com",
			Subject:           subject,
			Audience:          []string{"client"},
			Expiry:            now.Add(d),
			IssuedAt:          now,
			Email:             subject + "@example.com",
			PreferredUsername: subject,
			Raw:               map[string]interface{}{"sub": subject},
		},
		UserInfo: oidc.UserInfo{"sub": subject, "color": "red"},
		Tokens: &oidc.TokenSet{
			AccessToken:  "test-access-token",
			IDToken:      "test-id-token",
			RefreshToken: "test-refresh-token",
			TokenType:    "Bearer",
			Expiry:       now.Add(d),
		},
		IssuedAt:     now,
		ExpiresAt:    now.Add(d),
		MaxExpiresAt: now.Add(d),
		Version:      1,
	}
}

// TestStore exercises the Store contract against s.  Store implementations
// call it from their own tests.
func TestStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("save-load-delete", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := TestSession(t, "manzolo", time.Hour)
		require.NoError(s.Save(ctx, want))

		got, err := s.Load(ctx, want.ID)
		require.NoError(err)
		assert.Equal(want.ID, got.ID)
		assert.Equal(want.Handle, got.Handle)
		assert.Equal(want.Subject, got.Subject)
		assert.Equal(want.Claims.Email, got.Claims.Email)
		assert.Equal(want.UserInfo["color"], got.UserInfo["color"])
		assert.Equal(want.Tokens.AccessToken, got.Tokens.AccessToken)
		assert.Equal(want.Tokens.IDToken, got.Tokens.IDToken)
		assert.Equal(want.Tokens.RefreshToken, got.Tokens.RefreshToken)
		assert.True(want.ExpiresAt.Equal(got.ExpiresAt))
		assert.True(want.MaxExpiresAt.Equal(got.MaxExpiresAt))

		require.NoError(s.Delete(ctx, want.ID))
		_, err = s.Load(ctx, want.ID)
		assert.ErrorIs(err, ErrSessionNotFound)
		assert.NoError(s.Delete(ctx, want.ID), "delete is idempotent")
	})
	t.Run("replace", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		sess := TestSession(t, "alice", time.Hour)
		require.NoError(s.Save(ctx, sess))
		sess.Tokens.AccessToken = "rotated"
		require.NoError(s.Save(ctx, sess))

		got, err := s.Load(ctx, sess.ID)
		require.NoError(err)
		assert.Equal(oidc.AccessToken("rotated"), got.Tokens.AccessToken)
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := s.Load(ctx, "unknown")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("update", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		sess := TestSession(t, "bob", time.Hour)
		require.NoError(s.Save(ctx, sess))

		renewed := TestSession(t, "bob", 2*time.Hour)
		renewed.ID = sess.ID
		renewed.Tokens.AccessToken = "renewed"
		renewed.Version = sess.Version + 1
		require.NoError(s.Update(ctx, renewed, sess.Version))
		got, err := s.Load(ctx, sess.ID)
		require.NoError(err)
		assert.Equal(oidc.AccessToken("renewed"), got.Tokens.AccessToken)
		assert.Equal(renewed.Version, got.Version)

		// a second update computed from the same version loses
		stale := TestSession(t, "bob", 2*time.Hour)
		stale.ID = sess.ID
		stale.Tokens.AccessToken = "stale"
		stale.Version = sess.Version + 1
		err = s.Update(ctx, stale, sess.Version)
		assert.ErrorIs(err, ErrSessionChanged)
		got, err = s.Load(ctx, sess.ID)
		require.NoError(err)
		assert.Equal(oidc.AccessToken("renewed"), got.Tokens.AccessToken)
	})
	t.Run("update-deleted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		sess := TestSession(t, "carol", time.Hour)
		require.NoError(s.Save(ctx, sess))
		require.NoError(s.Delete(ctx, sess.ID))

		renewed := TestSession(t, "carol", time.Hour)
		renewed.ID = sess.ID
		renewed.Version = sess.Version + 1
		err := s.Update(ctx, renewed, sess.Version)
		assert.ErrorIs(err, ErrSessionNotFound)
		_, err = s.Load(ctx, sess.ID)
		assert.ErrorIs(err, ErrSessionNotFound, "update never creates a session")
	})
	t.Run("delete-version", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		sess := TestSession(t, "dave", time.Hour)
		sess.Version = 3
		require.NoError(s.Save(ctx, sess))

		require.NoError(s.DeleteVersion(ctx, sess.ID, 2))
		_, err := s.Load(ctx, sess.ID)
		require.NoError(err, "another version is kept")

		require.NoError(s.DeleteVersion(ctx, sess.ID, 3))
		_, err = s.Load(ctx, sess.ID)
		assert.ErrorIs(err, ErrSessionNotFound)
		assert.NoError(s.DeleteVersion(ctx, sess.ID, 3))
	})
}
