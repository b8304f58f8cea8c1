// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/hashicorp/oidc-webapp/oidc"
)

func TestNewJSONWebKeySet(t *testing.T) {
	tp := oidc.StartTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		jwksURL   string
		caPEM     string
		wantErr   bool
		wantIsErr error
	}{
		{
			name:    "valid",
			jwksURL: tp.Addr() + "/certs",
			caPEM:   tp.CACert(),
		},
		{
			name:    "valid-system-roots",
			jwksURL: "https://example.com/certs",
		},
		{
			name:      "empty-url",
			caPEM:     tp.CACert(),
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "invalid-ca",
			jwksURL:   tp.Addr() + "/certs",
			caPEM:     "not a pem",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewJSONWebKeySet(ctx, tt.jwksURL, tt.caPEM)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.jwksURL, got.JWKSURL())
		})
	}
}

func TestNewOIDCDiscoveryKeySet(t *testing.T) {
	tp := oidc.StartTestProvider(t)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ks, err := NewOIDCDiscoveryKeySet(ctx, tp.Issuer(), tp.CACert())
		require.NoError(err)
		assert.Equal(tp.Addr()+"/certs", ks.JWKSURL())

		claims, err := ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		require.NoError(err)
		assert.Equal(tp.Issuer(), claims["iss"])
	})
	t.Run("empty-issuer", func(t *testing.T) {
		_, err := NewOIDCDiscoveryKeySet(ctx, "", tp.CACert())
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
	t.Run("unreachable", func(t *testing.T) {
		_, err := NewOIDCDiscoveryKeySet(ctx, closedServerURL(t), "")
		assert.ErrorIs(t, err, ErrKeySetUnavailable)
	})
	t.Run("untrusted-tls", func(t *testing.T) {
		_, err := NewOIDCDiscoveryKeySet(ctx, tp.Issuer(), "")
		assert.ErrorIs(t, err, ErrKeySetUnavailable)
	})
	t.Run("client-from-context", func(t *testing.T) {
		ctx := context.WithValue(ctx, oauth2.HTTPClient, tp.HTTPClient())
		_, err := NewOIDCDiscoveryKeySet(ctx, tp.Issuer(), "")
		assert.NoError(t, err)
	})
}

func TestJSONWebKeySet_VerifySignature(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert())
		require.NoError(err)

		claims, err := ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), map[string]interface{}{"color": "red"}))
		require.NoError(err)
		assert.Equal("red", claims["color"])
	})
	t.Run("no-kid", func(t *testing.T) {
		require := require.New(t)
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert())
		require.NoError(err)

		_, priv := tp.SigningKeys()
		_, err = ks.VerifySignature(ctx, oidc.TestSignJWT(t, priv, tp.DefaultIDTokenClaims(), nil))
		require.NoError(err)
	})
	t.Run("malformed", func(t *testing.T) {
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert())
		require.NoError(t, err)

		_, err = ks.VerifySignature(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("unknown-key", func(t *testing.T) {
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert())
		require.NoError(t, err)

		_, priv := oidc.TestGenerateKeys(t)
		_, err = ks.VerifySignature(ctx, oidc.TestSignJWT(t, priv, tp.DefaultIDTokenClaims(), nil))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("unreachable", func(t *testing.T) {
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, closedServerURL(t)+"/certs", "")
		require.NoError(t, err)

		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		assert.ErrorIs(t, err, ErrKeySetUnavailable)
	})
	t.Run("bad-status", func(t *testing.T) {
		tp := oidc.StartTestProvider(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)
		ks, err := NewJSONWebKeySet(ctx, srv.URL, "")
		require.NoError(t, err)

		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		assert.ErrorIs(t, err, ErrKeySetUnavailable)
	})
	t.Run("rotated-key-refetched", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert(), WithMinRefreshInterval(0))
		require.NoError(err)

		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		require.NoError(err)

		tp.RotateSigningKeys()
		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		assert.NoError(err)
	})
	t.Run("rotated-key-rate-limited", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		ks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/certs", tp.CACert(), WithMinRefreshInterval(time.Hour))
		require.NoError(err)

		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		require.NoError(err)

		tp.RotateSigningKeys()
		_, err = ks.VerifySignature(ctx, tp.SignJWT(tp.DefaultIDTokenClaims(), nil))
		assert.ErrorIs(err, ErrInvalidSignature)
	})
}

func TestNewStaticKeySet(t *testing.T) {
	ecPub, _ := oidc.TestGenerateKeys(t)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name      string
		keys      []string
		wantErr   bool
		wantIsErr error
	}{
		{name: "ecdsa", keys: []string{ecPub}},
		{name: "rsa-and-ed25519", keys: []string{testPublicKeyPEM(t, &rsaKey.PublicKey), testPublicKeyPEM(t, edPub)}},
		{name: "empty", wantErr: true, wantIsErr: ErrInvalidParameter},
		{name: "not-pem", keys: []string{"nope"}, wantErr: true, wantIsErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewStaticKeySet(tt.keys)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestStaticKeySet_VerifySignature(t *testing.T) {
	ctx := context.Background()
	pub, priv := oidc.TestGenerateKeys(t)
	ks, err := NewStaticKeySet([]string{pub})
	require.NoError(t, err)

	claims := jwt.Claims{
		Issuer: "https://example.com",
		Expiry: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	t.Run("valid", func(t *testing.T) {
		got, err := ks.VerifySignature(ctx, oidc.TestSignJWT(t, priv, claims, nil))
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", got["iss"])
	})
	t.Run("wrong-key", func(t *testing.T) {
		_, otherPriv := oidc.TestGenerateKeys(t)
		_, err := ks.VerifySignature(ctx, oidc.TestSignJWT(t, otherPriv, claims, nil))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := ks.VerifySignature(ctx, "a.b")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestParsePublicKeyPEM(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ca := oidc.TestGenerateCA(t, []string{"localhost"})

	tests := []struct {
		name    string
		pem     string
		wantErr bool
	}{
		{name: "ecdsa", pem: testPublicKeyPEM(t, &ecKey.PublicKey)},
		{name: "rsa", pem: testPublicKeyPEM(t, &rsaKey.PublicKey)},
		{name: "ed25519", pem: testPublicKeyPEM(t, edPub)},
		{name: "certificate", pem: ca},
		{name: "garbage", pem: "-----BEGIN PUBLIC KEY-----\nbm9wZQ==\n-----END PUBLIC KEY-----\n", wantErr: true},
		{name: "empty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePublicKeyPEM([]byte(tt.pem))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestVerifyWithKeys(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	token := testSignRS256(t, rsaKey, "", jwt.Claims{Subject: "alice"})
	jws, err := jose.ParseSigned(token)
	require.NoError(err)

	sigKey := jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "a", Use: "sig"}
	encKey := jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "b", Use: "enc"}

	_, ok := verifyWithKeys(jws, "", []jose.JSONWebKey{sigKey})
	assert.True(ok)
	_, ok = verifyWithKeys(jws, "", []jose.JSONWebKey{encKey})
	assert.False(ok, "encryption keys are never used for signatures")
	_, ok = verifyWithKeys(jws, "b", []jose.JSONWebKey{sigKey})
	assert.False(ok, "kid must match")
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func testPublicKeyPEM(t *testing.T, pub interface{}) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testSignRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	return testSignRSA(t, key, jose.RS256, kid, claims, nil)
}

func testSignRSA(t *testing.T, key *rsa.PrivateKey, alg jose.SignatureAlgorithm, kid string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	require.NoError(t, err)
	b := jwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		b = b.Claims(privateClaims)
	}
	raw, err := b.CompactSerialize()
	require.NoError(t, err)
	return raw
}
