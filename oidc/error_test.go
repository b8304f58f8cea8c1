// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_joined(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		wantIs  []error
		wantNot []error
	}{
		{
			name:    "invalid-nonce",
			err:     fmt.Errorf("Provider.verifyIDToken: %w: %w", ErrInvalidToken, ErrInvalidNonce),
			wantIs:  []error{ErrInvalidToken, ErrInvalidNonce},
			wantNot: []error{ErrInvalidIssuer, ErrProviderUnreachable},
		},
		{
			name:    "unreachable",
			err:     fmt.Errorf("Provider.ExchangeCode: %w: %w", ErrProviderUnreachable, errors.New("dial tcp: connection refused")),
			wantIs:  []error{ErrProviderUnreachable},
			wantNot: []error{ErrTokenExchangeFailed},
		},
		{
			name:    "missing-id-token",
			err:     fmt.Errorf("Provider.ExchangeCode: %w: %w", ErrTokenExchangeFailed, ErrMissingIDToken),
			wantIs:  []error{ErrTokenExchangeFailed, ErrMissingIDToken},
			wantNot: []error{ErrInvalidToken},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			for _, want := range tt.wantIs {
				assert.Truef(errors.Is(tt.err, want), "wanted \"%s\" but got \"%s\"", want, tt.err)
			}
			for _, not := range tt.wantNot {
				assert.Falsef(errors.Is(tt.err, not), "did not want \"%s\" in \"%s\"", not, tt.err)
			}
		})
	}
}
