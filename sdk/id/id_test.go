// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithEntropy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		entropy   int
		prefix    string
		wantLen   int
		wantIsErr error
	}{
		{
			name:    "valid",
			entropy: DefaultEntropy,
			prefix:  "id",
			wantLen: 43 + len("id_"),
		},
		{
			name:    "no-prefix",
			entropy: DefaultEntropy,
			wantLen: 43,
		},
		{
			name:    "minimum",
			entropy: 16,
			wantLen: 22,
		},
		{
			name:      "too-small",
			entropy:   15,
			wantIsErr: ErrInvalidEntropy,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewWithEntropy(tt.entropy, tt.prefix)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Len(got, tt.wantLen)
			if tt.prefix != "" {
				assert.True(strings.HasPrefix(got, tt.prefix+"_"))
				got = strings.TrimPrefix(got, tt.prefix+"_")
			}
			raw, err := base64.RawURLEncoding.DecodeString(got)
			require.NoError(err)
			assert.Len(raw, tt.entropy)
		})
	}
}

func TestNew_unique(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		got, err := New("")
		require.NoError(err)
		_, dup := seen[got]
		assert.False(dup)
		seen[got] = struct{}{}
	}
}

func TestNewHandle(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	h := NewHandle("s")
	assert.True(strings.HasPrefix(h, "s_"))
	assert.Len(h, len("s_")+27)
	assert.NotEqual(h, NewHandle("s"))
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	got, err := NewRequestID()
	require.NoError(err)
	assert.Len(got, 36)
}
