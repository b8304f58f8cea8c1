// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// TestStore exercises the Store contract against s.  Store implementations
// call it from their own tests.
func TestStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put-take", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := oidc.NewAttempt(time.Minute, oidc.WithReturnTo("/profile"))
		require.NoError(err)
		require.NoError(s.Put(ctx, a))

		got, err := s.Take(ctx, a.State)
		require.NoError(err)
		assert.Equal(a.State, got.State)
		assert.Equal(a.Nonce, got.Nonce)
		assert.Equal(a.Verifier, got.Verifier)
		assert.Equal(a.ReturnTo, got.ReturnTo)
		assert.True(a.ExpiresAt.Equal(got.ExpiresAt))

		_, err = s.Take(ctx, a.State)
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := s.Take(ctx, "unknown999")
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("concurrent-take", func(t *testing.T) {
		a, err := oidc.NewAttempt(time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, a))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Take(ctx, a.State); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
