// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttempt(t *testing.T) {
	t.Parallel()
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}
	tests := []struct {
		name         string
		expireIn     time.Duration
		opts         []Option
		wantReturnTo string
		wantIsErr    error
	}{
		{
			name:     "valid-WithNow",
			expireIn: time.Minute,
			opts:     []Option{WithNow(testNow)},
		},
		{
			name:         "valid-WithReturnTo",
			expireIn:     time.Minute,
			opts:         []Option{WithReturnTo("/profile")},
			wantReturnTo: "/profile",
		},
		{
			name:      "zero-expireIn",
			expireIn:  0,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "negative-expireIn",
			expireIn:  -time.Second,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewAttempt(tt.expireIn, tt.opts...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NoError(got.Validate())
			assert.NotEqual(got.State, got.Nonce)
			assert.Len(got.State, DefaultIDLength)
			assert.Len(got.Nonce, DefaultIDLength)
			assert.Len(got.Verifier, verifierLen)
			assert.Equal(tt.expireIn, got.ExpiresAt.Sub(got.CreatedAt))
			assert.Equal(tt.wantReturnTo, got.ReturnTo)
			assert.NotEqual(got.Verifier, got.Challenge())
		})
	}
}

func TestAttempt_IsExpired(t *testing.T) {
	t.Parallel()
	t.Run("not-expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAttempt(2 * time.Second)
		require.NoError(err)
		assert.False(a.IsExpired())
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAttempt(1 * time.Nanosecond)
		require.NoError(err)
		assert.True(a.IsExpired())
	})
	t.Run("WithNow", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAttempt(time.Minute)
		require.NoError(err)
		later := func() time.Time { return time.Now().Add(2 * time.Minute) }
		assert.True(a.IsExpired(WithNow(later)))
	})
	t.Run("WithExpirySkew", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAttempt(time.Minute)
		require.NoError(err)
		assert.True(a.IsExpired(WithExpirySkew(2 * time.Minute)))
	})
}

func TestAttempt_Validate(t *testing.T) {
	t.Parallel()
	valid, err := NewAttempt(time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name      string
		attempt   func() *Attempt
		wantIsErr error
	}{
		{name: "valid", attempt: func() *Attempt { cp := *valid; return &cp }},
		{name: "nil", attempt: func() *Attempt { return nil }, wantIsErr: ErrNilParameter},
		{name: "missing-state", attempt: func() *Attempt { cp := *valid; cp.State = ""; return &cp }, wantIsErr: ErrInvalidParameter},
		{name: "missing-nonce", attempt: func() *Attempt { cp := *valid; cp.Nonce = ""; return &cp }, wantIsErr: ErrInvalidParameter},
		{name: "equal-state-nonce", attempt: func() *Attempt { cp := *valid; cp.Nonce = cp.State; return &cp }, wantIsErr: ErrInvalidParameter},
		{name: "bad-verifier", attempt: func() *Attempt { cp := *valid; cp.Verifier = "short"; return &cp }, wantIsErr: ErrInvalidCodeVerifier},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			err := tt.attempt().Validate()
			if tt.wantIsErr != nil {
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			assert.NoError(err)
		})
	}
}
