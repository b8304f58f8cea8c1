// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

func TestIDToken_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk := IDToken("eyJhbGciOiJFUzI1NiJ9.e30.sig")
	assert.Equal(RedactedIDToken, tk.String())

	b, err := json.Marshal(struct {
		IDToken IDToken `json:"id_token"`
	}{tk})
	require.NoError(err)
	assert.JSONEq(`{"id_token":"[REDACTED: id_token]"}`, string(b))
}

func TestIDToken_Claims(t *testing.T) {
	t.Parallel()
	_, priv := TestGenerateKeys(t)
	now := time.Now().Truncate(time.Second)
	signed := IDToken(TestSignJWT(t, priv, jwt.Claims{
		Issuer:   "http://localhost:8080/realms/demo",
		Subject:  "manzolo",
		Audience: jwt.Audience{"flask-app"},
		IssuedAt: jwt.NewNumericDate(now),
	}, map[string]interface{}{
		"email":              "manzolo@keycloak.org",
		"preferred_username": "manzolo",
	}))

	type subAndEmail struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	tests := []struct {
		name    string
		token   IDToken
		claims  interface{}
		want    interface{}
		wantErr error
	}{
		{
			name:   "typed",
			token:  signed,
			claims: &subAndEmail{},
			want:   &subAndEmail{Sub: "manzolo", Email: "manzolo@keycloak.org"},
		},
		{
			name:   "map",
			token:  signed,
			claims: &map[string]interface{}{},
			want: &map[string]interface{}{
				"iss":                "http://localhost:8080/realms/demo",
				"sub":                "manzolo",
				"aud":                "flask-app",
				"iat":                float64(now.Unix()),
				"email":              "manzolo@keycloak.org",
				"preferred_username": "manzolo",
			},
		},
		{name: "empty-token", claims: &subAndEmail{}, wantErr: ErrInvalidParameter},
		{name: "nil-claims", token: signed, wantErr: ErrNilParameter},
		{name: "malformed", token: "a.b", claims: &subAndEmail{}, wantErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			err := tt.token.Claims(tt.claims)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, tt.claims)
		})
	}
}
