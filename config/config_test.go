// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-webapp/jwt"
	"github.com/hashicorp/oidc-webapp/oidc"
)

func testEnviron(kv ...string) map[string]string {
	m := map[string]string{
		"CLIENT_ID":          "flask-app",
		"CLIENT_SECRET":      "secret",
		"AUTH_SERVER_PUBLIC": "http://localhost:8080/realms/demo",
	}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func testWriteFile(t *testing.T, name, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestParse(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := Parse(testEnviron())
		require.NoError(err)
		assert.Equal("flask-app", c.ClientID)
		assert.Equal("http://localhost:5000/callback", c.RedirectURI)
		assert.Equal("http://localhost:5000/", c.PostLogoutRedirectURI)
		assert.Equal([]string{"profile", "email"}, c.Scopes)
		assert.Equal([]string{"RS256"}, c.SigningAlgs)
		assert.Equal(10*time.Second, c.ProviderTimeout)
		assert.Equal(":5000", c.ListenAddr)
		assert.Equal(10*time.Minute, c.LoginAttemptTTL)
		assert.Equal(8*time.Hour, c.SessionMaxLifetime)
		assert.Equal("oidc_webapp_session", c.SessionCookieName)
		assert.True(c.SessionCookieSecure)
		assert.Equal(StoreMemory, c.Store)
		assert.True(c.FetchUserInfo)
		assert.False(c.EnableRefresh)
		assert.Equal("info", c.LogLevel)
		assert.Nil(c.HashKey())
		assert.Nil(c.BlockKey())
	})
	t.Run("overrides", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := Parse(testEnviron(
			"AUTH_SERVER_INTERNAL", "http://keycloak:8080/realms/demo",
			"SCOPES", "profile email offline_access",
			"SIGNING_ALGS", "RS256,ES256",
			"SESSION_COOKIE_SECURE", "false",
			"SESSION_HASH_KEY", "0123456789abcdef0123456789abcdef",
			"SESSION_BLOCK_KEY", "0123456789abcdef",
			"STORE", "valkey",
			"VALKEY_ADDRS", "valkey-1:6379,valkey-2:6379",
			"ENABLE_REFRESH", "true",
			"LOG_LEVEL", "debug",
			"LOG_JSON", "true",
		))
		require.NoError(err)
		assert.Equal("http://keycloak:8080/realms/demo", c.InternalIssuer)
		assert.Equal([]string{"profile", "email", "offline_access"}, c.Scopes)
		assert.Equal([]string{"RS256", "ES256"}, c.SigningAlgs)
		assert.False(c.SessionCookieSecure)
		assert.Len(c.HashKey(), 32)
		assert.Len(c.BlockKey(), 16)
		assert.Equal([]string{"valkey-1:6379", "valkey-2:6379"}, c.ValkeyAddrs)
		assert.True(c.EnableRefresh)
		assert.True(c.LogJSON)
		assert.True(c.Logger("test").IsDebug())
	})

	tests := []struct {
		name     string
		environ  map[string]string
		contains []string
	}{
		{
			name:     "missing-required",
			environ:  map[string]string{},
			contains: []string{"CLIENT_ID: is required", "CLIENT_SECRET: is required", "AUTH_SERVER_PUBLIC: is required"},
		},
		{
			name:     "bad-url",
			environ:  testEnviron("AUTH_SERVER_PUBLIC", "not a url"),
			contains: []string{"AUTH_SERVER_PUBLIC", "is not a url"},
		},
		{
			name:     "valkey-without-addrs",
			environ:  testEnviron("STORE", "valkey"),
			contains: []string{"VALKEY_ADDRS: is required when Store is valkey"},
		},
		{
			name:     "valkey-without-hash-key",
			environ:  testEnviron("STORE", "valkey", "VALKEY_ADDRS", "valkey:6379"),
			contains: []string{"SESSION_HASH_KEY: is required when Store is valkey"},
		},
		{
			name:     "sqlite-without-path",
			environ:  testEnviron("STORE", "sqlite"),
			contains: []string{"SQLITE_PATH"},
		},
		{
			name:     "unknown-store",
			environ:  testEnviron("STORE", "postgres"),
			contains: []string{"STORE", "is not one of memory valkey sqlite"},
		},
		{
			name:     "unsupported-alg",
			environ:  testEnviron("SIGNING_ALGS", "RS256,none"),
			contains: []string{"SIGNING_ALGS", `"none" is not a supported signing algorithm`},
		},
		{
			name:     "short-hash-key",
			environ:  testEnviron("SESSION_HASH_KEY", "too-short"),
			contains: []string{"SESSION_HASH_KEY: must be at least 32 long"},
		},
		{
			name:     "bad-block-key",
			environ:  testEnviron("SESSION_BLOCK_KEY", "seventeen-bytes!!"),
			contains: []string{"SESSION_BLOCK_KEY: must be 16, 24 or 32 bytes long"},
		},
		{
			name:     "bad-duration",
			environ:  testEnviron("PROVIDER_TIMEOUT", "soon"),
			contains: []string{`"soon"`},
		},
		{
			name:     "missing-ca-file",
			environ:  testEnviron("PROVIDER_CA_FILE", "/does/not/exist.pem"),
			contains: []string{"PROVIDER_CA_FILE", "is not a readable file"},
		},
		{
			name:     "bad-log-level",
			environ:  testEnviron("LOG_LEVEL", "loud"),
			contains: []string{"LOG_LEVEL"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c, err := Parse(tt.environ)
			require.Error(err)
			assert.Nil(c)
			assert.ErrorIs(err, ErrInvalidConfig)
			for _, s := range tt.contains {
				assert.Contains(err.Error(), s)
			}
		})
	}
}

func TestConfig_OIDCConfig(t *testing.T) {
	t.Parallel()
	ca := testWriteFile(t, "ca.pem", oidc.TestGenerateCA(t, []string{"localhost"}))

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := Parse(testEnviron(
			"AUTH_SERVER_INTERNAL", "http://keycloak:8080/realms/demo",
			"PROVIDER_CA_FILE", ca,
			"PROVIDER_TIMEOUT", "3s",
		))
		require.NoError(err)
		oc, err := c.OIDCConfig(hclog.NewNullLogger())
		require.NoError(err)
		assert.Equal("http://localhost:8080/realms/demo", oc.Issuer)
		assert.Equal("http://keycloak:8080/realms/demo", oc.InternalIssuer)
		assert.Equal("flask-app", oc.ClientID)
		assert.Equal(oidc.ClientSecret("secret"), oc.ClientSecret)
		assert.Equal("http://localhost:5000/callback", oc.RedirectURL)
		assert.Equal("http://localhost:5000/", oc.PostLogoutRedirectURL)
		assert.Equal([]string{"openid", "profile", "email"}, oc.Scopes)
		assert.Equal([]oidc.Alg{oidc.RS256}, oc.SupportedSigningAlgs)
		assert.Equal(3*time.Second, oc.Timeout)
		assert.NotEmpty(oc.ProviderCA)
	})
	t.Run("unreadable-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := Parse(testEnviron())
		require.NoError(err)
		c.ProviderCAFile = filepath.Join(t.TempDir(), "missing.pem")
		_, err = c.OIDCConfig(hclog.NewNullLogger())
		require.Error(err)
		assert.Contains(err.Error(), "PROVIDER_CA_FILE")
	})
}

func TestLoadEnvFiles(t *testing.T) {
	// modifies the process environment
	assert, require := assert.New(t), require.New(t)
	const name = "OIDC_WEBAPP_TEST_LOAD_ENV_FILES"
	t.Cleanup(func() { os.Unsetenv(name) })

	p := testWriteFile(t, ".env", name+"=from-file\n")
	require.NoError(LoadEnvFiles(p))
	assert.Equal("from-file", os.Getenv(name))

	// variables already set win
	t.Setenv(name, "from-env")
	require.NoError(LoadEnvFiles(p))
	assert.Equal("from-env", os.Getenv(name))

	err := LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(err)
}

func TestParseResource(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := ParseResource(map[string]string{
			"RESOURCE_ISSUER":   "http://keycloak:8080/realms/demo",
			"RESOURCE_AUDIENCE": "flask-app,account",
		})
		require.NoError(err)
		assert.Equal(":5001", c.ListenAddr)
		assert.Empty(c.JWKSURL)
		assert.Equal(jwt.Expected{
			Issuer:            "http://keycloak:8080/realms/demo",
			Audiences:         []string{"flask-app", "account"},
			SigningAlgorithms: []jwt.Alg{jwt.RS256},
		}, c.Expected())
	})
	t.Run("invalid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := ParseResource(map[string]string{
			"RESOURCE_JWKS_URL":     "not a url",
			"RESOURCE_SIGNING_ALGS": "HS256",
		})
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidConfig)
		assert.Contains(err.Error(), "RESOURCE_ISSUER: is required")
		assert.Contains(err.Error(), "RESOURCE_JWKS_URL")
		assert.Contains(err.Error(), `"HS256" is not a supported signing algorithm`)
	})
}

func TestResourceConfig_Validator(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)
	tp.SetClientCreds("flask-app", "secret")
	tp.SetCustomClaims(map[string]interface{}{"preferred_username": "manzolo"})
	ca := testWriteFile(t, "ca.pem", tp.CACert())

	tests := []struct {
		name    string
		jwksURL string
	}{
		{name: "jwks-url", jwksURL: tp.Addr() + "/certs"},
		{name: "discovery"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			environ := map[string]string{
				"RESOURCE_ISSUER":       tp.Issuer(),
				"RESOURCE_AUDIENCE":     "flask-app",
				"RESOURCE_SIGNING_ALGS": "ES256",
				"PROVIDER_CA_FILE":      ca,
			}
			if tt.jwksURL != "" {
				environ["RESOURCE_JWKS_URL"] = tt.jwksURL
			}
			c, err := ParseResource(environ)
			require.NoError(err)
			v, err := c.Validator(context.Background())
			require.NoError(err)

			token := tp.SignJWT(tp.DefaultIDTokenClaims(), map[string]interface{}{"preferred_username": "manzolo"})
			claims, err := v.Validate(context.Background(), token, c.Expected())
			require.NoError(err)
			assert.Equal("manzolo", claims["preferred_username"])
		})
	}
}
