// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// Store names a backend for login attempts and sessions.
const (
	StoreMemory = "memory"
	StoreValkey = "valkey"
	StoreSQLite = "sqlite"
)

// Config is the web application's configuration.
type Config struct {
	Logging

	ClientID     string `env:"CLIENT_ID" validate:"required"`
	ClientSecret string `env:"CLIENT_SECRET" validate:"required"`

	// PublicIssuer is the issuer as browsers reach it.  InternalIssuer,
	// when set, is the same provider as this server reaches it.
	PublicIssuer   string `env:"AUTH_SERVER_PUBLIC" validate:"required,url"`
	InternalIssuer string `env:"AUTH_SERVER_INTERNAL" validate:"omitempty,url"`

	RedirectURI           string        `env:"REDIRECT_URI" envDefault:"http://localhost:5000/callback" validate:"required,url"`
	PostLogoutRedirectURI string        `env:"POST_LOGOUT_REDIRECT_URI" envDefault:"http://localhost:5000/" validate:"omitempty,url"`
	Scopes                []string      `env:"SCOPES" envSeparator:" " envDefault:"profile email"`
	SigningAlgs           []string      `env:"SIGNING_ALGS" envSeparator:"," envDefault:"RS256" validate:"required"`
	ProviderCAFile        string        `env:"PROVIDER_CA_FILE" validate:"omitempty,file"`
	ProviderTimeout       time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":5000" validate:"required"`
	LoginAttemptTTL time.Duration `env:"LOGIN_ATTEMPT_TTL" envDefault:"10m" validate:"gt=0"`

	SessionMaxLifetime  time.Duration `env:"SESSION_MAX_LIFETIME" envDefault:"8h" validate:"gt=0"`
	SessionCookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"oidc_webapp_session" validate:"required"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	SessionHashKey      string        `env:"SESSION_HASH_KEY" validate:"required_if=Store valkey,omitempty,min=32"`
	SessionBlockKey     string        `env:"SESSION_BLOCK_KEY" validate:"omitempty,len=16|len=24|len=32"`

	Store           string   `env:"STORE" envDefault:"memory" validate:"oneof=memory valkey sqlite"`
	ValkeyAddrs     []string `env:"VALKEY_ADDRS" envSeparator:"," validate:"required_if=Store valkey"`
	ValkeyUsername  string   `env:"VALKEY_USERNAME"`
	ValkeyPassword  string   `env:"VALKEY_PASSWORD"`
	ValkeyKeyPrefix string   `env:"VALKEY_KEY_PREFIX"`
	SQLitePath      string   `env:"SQLITE_PATH" validate:"required_if=Store sqlite"`

	FetchUserInfo     bool   `env:"FETCH_USERINFO" envDefault:"true"`
	EnableRefresh     bool   `env:"ENABLE_REFRESH" envDefault:"false"`
	ResourceServerURL string `env:"RESOURCE_SERVER_URL" validate:"omitempty,url"`
}

// Load loads the env files, see LoadEnvFiles, then parses and validates the
// environment.
func Load(envFiles ...string) (*Config, error) {
	const op = "config.Load"
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := Parse(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Parse parses and validates environ, or the process environment when
// environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	var c Config
	var merr *multierror.Error
	if err := parse(&c, environ); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := checkAlgs("SIGNING_ALGS", c.SigningAlgs); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &c, nil
}

// OIDCConfig returns the provider configuration.
func (c *Config) OIDCConfig(logger hclog.Logger) (*oidc.Config, error) {
	const op = "Config.OIDCConfig"
	opts := []oidc.Option{
		oidc.WithScopes(c.Scopes...),
		oidc.WithTimeout(c.ProviderTimeout),
		oidc.WithLogger(logger),
	}
	if c.InternalIssuer != "" {
		opts = append(opts, oidc.WithInternalIssuer(c.InternalIssuer))
	}
	if c.PostLogoutRedirectURI != "" {
		opts = append(opts, oidc.WithPostLogoutRedirectURL(c.PostLogoutRedirectURI))
	}
	if c.ProviderCAFile != "" {
		ca, err := os.ReadFile(c.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read PROVIDER_CA_FILE: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(ca)))
	}
	oc, err := oidc.NewConfig(c.PublicIssuer, c.ClientID, oidc.ClientSecret(c.ClientSecret), toAlgs(c.SigningAlgs), c.RedirectURI, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return oc, nil
}

// HashKey returns the session cookie signing key, nil when none is
// configured.  It's always configured with the valkey store, which is
// shared by instances that must accept each other's cookies.
func (c *Config) HashKey() []byte {
	if c.SessionHashKey == "" {
		return nil
	}
	return []byte(c.SessionHashKey)
}

// BlockKey returns the session cookie encryption key, nil when none is
// configured.
func (c *Config) BlockKey() []byte {
	if c.SessionBlockKey == "" {
		return nil
	}
	return []byte(c.SessionBlockKey)
}

func toAlgs(names []string) []oidc.Alg {
	algs := make([]oidc.Alg, 0, len(names))
	for _, n := range names {
		algs = append(algs, oidc.Alg(n))
	}
	return algs
}

func checkAlgs(name string, names []string) error {
	var merr *multierror.Error
	for _, a := range toAlgs(names) {
		if !a.IsSupported() {
			merr = multierror.Append(merr, fmt.Errorf("%s: %q is not a supported signing algorithm: %w", name, a, ErrInvalidConfig))
		}
	}
	return merr.ErrorOrNil()
}
