// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAccessToken_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedAccessToken
		tk := AccessToken("super secret token")
		assert.Equalf(want, tk.String(), "AccessToken.String() = %v, want %v", tk.String(), want)
		assert.Equal(want, fmt.Sprintf("%s", tk))
	})
}

func TestAccessToken_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedAccessToken)
		tk := AccessToken("super secret token")
		got, err := tk.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "AccessToken.MarshalJSON() = %s, want %s", got, want)
	})
}

func TestAccessToken_Claims(t *testing.T) {
	t.Parallel()
	t.Run("opaque", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var claims map[string]interface{}
		err := AccessToken("not-a-jwt").Claims(&claims)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("empty", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var claims map[string]interface{}
		err := AccessToken("").Claims(&claims)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
}

func TestRefreshToken_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedRefreshToken
		tk := RefreshToken("super secret token")
		assert.Equalf(want, tk.String(), "RefreshToken.String() = %v, want %v", tk.String(), want)
	})
}

func TestRefreshToken_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedRefreshToken)
		tk := RefreshToken("super secret token")
		got, err := tk.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "RefreshToken.MarshalJSON() = %s, want %s", got, want)
	})
}

func TestTokenSet_MarshalJSON(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ts := TokenSet{
		AccessToken:  "access",
		IDToken:      "id",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
	}
	b, err := json.Marshal(ts)
	require.NoError(err)
	assert.NotContains(string(b), `"access"`)
	assert.NotContains(string(b), `"refresh"`)
	assert.Contains(string(b), RedactedAccessToken)
	assert.Contains(string(b), RedactedIDToken)
	assert.Contains(string(b), RedactedRefreshToken)
}

func TestTokenSet_IsExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tests := []struct {
		name   string
		ts     *TokenSet
		opts   []Option
		expect bool
		valid  bool
	}{
		{name: "no-expiry", ts: &TokenSet{AccessToken: "a"}, valid: true},
		{name: "future", ts: &TokenSet{AccessToken: "a", Expiry: now.Add(time.Hour)}, valid: true},
		{name: "past", ts: &TokenSet{AccessToken: "a", Expiry: now.Add(-time.Hour)}, expect: true},
		{name: "within-skew", ts: &TokenSet{AccessToken: "a", Expiry: now.Add(5 * time.Second)}, expect: true},
		{
			name:  "no-skew",
			ts:    &TokenSet{AccessToken: "a", Expiry: now.Add(5 * time.Second)},
			opts:  []Option{WithExpirySkew(0)},
			valid: true,
		},
		{
			name:   "WithNow",
			ts:     &TokenSet{AccessToken: "a", Expiry: now.Add(time.Hour)},
			opts:   []Option{WithNow(func() time.Time { return now.Add(2 * time.Hour) })},
			expect: true,
		},
		{name: "no-access-token", ts: &TokenSet{Expiry: now.Add(time.Hour)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.expect, tt.ts.IsExpired(tt.opts...))
			assert.Equal(tt.valid, tt.ts.Valid(tt.opts...))
		})
	}
	t.Run("nil", func(t *testing.T) {
		var ts *TokenSet
		assert.False(t, ts.Valid())
	})
}

func Test_newTokenSet(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	exp := time.Now().Add(time.Minute)
	tk := (&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       exp,
	}).WithExtra(map[string]interface{}{"id_token": "id"})
	got := newTokenSet(tk)
	assert.Equal(AccessToken("access"), got.AccessToken)
	assert.Equal(RefreshToken("refresh"), got.RefreshToken)
	assert.Equal(IDToken("id"), got.IDToken)
	assert.Equal("Bearer", got.TokenType)
	assert.Equal(exp, got.Expiry)

	missing := newTokenSet(&oauth2.Token{AccessToken: "access"})
	assert.Empty(missing.IDToken)
}
