// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/oidc-webapp/oidc/internal/strutils"
	sdkHttp "github.com/hashicorp/oidc-webapp/sdk/http"
)

const (
	// DefaultTimeout bounds every outbound call to the provider.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxIDTokenAge is how old an id_token's iat may be at
	// verification time.
	DefaultMaxIDTokenAge = 10 * time.Minute

	// DefaultClockSkew is the leeway applied to exp and iat checks.
	DefaultClockSkew = 30 * time.Second

	// DefaultRetryBackoff is the wait before the single retry of a transient
	// provider failure.
	DefaultRetryBackoff = 250 * time.Millisecond

	// DefaultDiscoveryRefreshInterval is the minimum time between two
	// discovery refreshes triggered by signature failures.
	DefaultDiscoveryRefreshInterval = 30 * time.Second
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for an OIDC provider used by a relying
// party for the authorization code flow with PKCE.
type Config struct {
	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// Scopes is a list of oidc scopes to request of the provider. The
	// required "openid" scope is always requested and is added when missing.
	Scopes []string

	// Issuer is the case-sensitive issuer identifier the browser sees.  It
	// must exactly match the "iss" claim of every id_token.
	Issuer string

	// InternalIssuer is an optional base URL used for server to server calls
	// when the provider is reachable at a different address from inside the
	// deployment (e.g. http://keycloak:8080/realms/myrealm).  Discovery is
	// fetched from it, and every endpoint except the authorization and
	// end-session endpoints is rewritten to use it.
	InternalIssuer string

	// SupportedSigningAlgs is a list of supported signing algorithms.
	SupportedSigningAlgs []Alg

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// PostLogoutRedirectURL is where the provider sends the user after
	// logout.
	PostLogoutRedirectURL string

	// Audiences is an optional list of case-sensitive strings. When set, an
	// id_token's "aud" claim must contain at least one of them, in addition
	// to the ClientID.
	Audiences []string

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// Timeout bounds every outbound call to the provider.
	Timeout time.Duration

	// MaxIDTokenAge is how old an id_token's iat may be.
	MaxIDTokenAge time.Duration

	// ClockSkew is the leeway applied to exp and iat checks.
	ClockSkew time.Duration

	// RetryBackoff is the initial wait before retrying a transient failure.
	RetryBackoff time.Duration

	// DiscoveryRefreshInterval is the minimum interval between discovery
	// refreshes.
	DiscoveryRefreshInterval time.Duration

	// RoundTripper is an optional transport, replacing the one built from
	// ProviderCA.
	RoundTripper http.RoundTripper

	// Logger is an optional logger. A null logger is used when nil.
	Logger hclog.Logger

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// The "openid" scope will always be added to the list of scopes.
//
// Supported options: WithProviderCA, WithScopes, WithAudiences, WithNow,
// WithInternalIssuer, WithPostLogoutRedirectURL, WithTimeout,
// WithMaxIDTokenAge, WithClockSkew, WithRetryBackoff,
// WithDiscoveryRefreshInterval, WithRoundTripper, WithLogger
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                   issuer,
		InternalIssuer:           opts.withInternalIssuer,
		ClientID:                 clientID,
		ClientSecret:             clientSecret,
		SupportedSigningAlgs:     supported,
		RedirectURL:              redirectURL,
		PostLogoutRedirectURL:    opts.withPostLogoutRedirectURL,
		Scopes:                   opts.withScopes,
		Audiences:                opts.withAudiences,
		ProviderCA:               opts.withProviderCA,
		Timeout:                  opts.withTimeout,
		MaxIDTokenAge:            opts.withMaxIDTokenAge,
		ClockSkew:                opts.withClockSkew,
		RetryBackoff:             opts.withRetryBackoff,
		DiscoveryRefreshInterval: opts.withDiscoveryRefreshInterval,
		RoundTripper:             opts.withRoundTripper,
		Logger:                   opts.withLogger,
		NowFunc:                  opts.withNowFunc,
	}
	c.Scopes = scopesWithOpenID(c.Scopes)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.  Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientID == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: client ID is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	if c.Issuer == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter))
	} else if err := validateBaseURL(c.Issuer); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%s: issuer %w", op, err))
	}
	if c.InternalIssuer != "" {
		if err := validateBaseURL(c.InternalIssuer); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: internal issuer %w", op, err))
		}
	}
	if c.RedirectURL == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter))
	} else if _, err := url.Parse(c.RedirectURL); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%s: redirect URL %q is invalid: %v: %w", op, c.RedirectURL, err, ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !a.IsSupported() {
			errs = multierror.Append(errs, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter))
		}
	}
	if !strutils.StrListContains(c.Scopes, oidc.ScopeOpenID) {
		errs = multierror.Append(errs, fmt.Errorf("%s: scopes must include %q: %w", op, oidc.ScopeOpenID, ErrInvalidParameter))
	}
	if c.ProviderCA != "" {
		if _, err := sdkHttp.NewClient(c.ProviderCA, 0); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", op, ErrInvalidCACert))
		}
	}
	for name, d := range map[string]time.Duration{
		"timeout":                    c.Timeout,
		"max id_token age":           c.MaxIDTokenAge,
		"clock skew":                 c.ClockSkew,
		"retry backoff":              c.RetryBackoff,
		"discovery refresh interval": c.DiscoveryRefreshInterval,
	} {
		if d < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s is negative: %w", op, name, ErrInvalidParameter))
		}
	}
	return errs.ErrorOrNil()
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q is invalid: %v: %w", raw, err, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%q scheme is not http or https: %w", raw, ErrInvalidParameter)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%q must not have a query or fragment: %w", raw, ErrInvalidParameter)
	}
	return nil
}

// Now will return the current time which can be overridden by the NowFunc.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}

func (c *Config) timeout() time.Duration {
	return durationOr(c.Timeout, DefaultTimeout)
}

func (c *Config) maxIDTokenAge() time.Duration {
	return durationOr(c.MaxIDTokenAge, DefaultMaxIDTokenAge)
}

func (c *Config) retryBackoff() time.Duration {
	return durationOr(c.RetryBackoff, DefaultRetryBackoff)
}

func (c *Config) refreshInterval() time.Duration {
	return durationOr(c.DiscoveryRefreshInterval, DefaultDiscoveryRefreshInterval)
}

func durationOr(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	if c.RoundTripper != nil {
		return &http.Client{Transport: c.RoundTripper, Timeout: c.timeout()}, nil
	}
	client, err := sdkHttp.NewClient(c.ProviderCA, c.timeout())
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	return sdkHttp.OidcClientContext(ctx, client)
}

func scopesWithOpenID(scopes []string) []string {
	all := append([]string{oidc.ScopeOpenID}, scopes...)
	return strutils.RemoveDuplicatesStable(all, false)
}

// internalBase returns the base URL for server to server calls.
func (c *Config) internalBase() string {
	if c.InternalIssuer != "" {
		return strings.TrimSuffix(c.InternalIssuer, "/")
	}
	return strings.TrimSuffix(c.Issuer, "/")
}

// configOptions is the set of available options
type configOptions struct {
	withScopes                   []string
	withAudiences                []string
	withProviderCA               string
	withInternalIssuer           string
	withPostLogoutRedirectURL    string
	withTimeout                  time.Duration
	withMaxIDTokenAge            time.Duration
	withClockSkew                time.Duration
	withRetryBackoff             time.Duration
	withDiscoveryRefreshInterval time.Duration
	withRoundTripper             http.RoundTripper
	withLogger                   hclog.Logger
	withNowFunc                  func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withTimeout:                  DefaultTimeout,
		withMaxIDTokenAge:            DefaultMaxIDTokenAge,
		withClockSkew:                DefaultClockSkew,
		withRetryBackoff:             DefaultRetryBackoff,
		withDiscoveryRefreshInterval: DefaultDiscoveryRefreshInterval,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA certs (PEM encoded) for the provider's
// config.  These certs will can be used when making http requests to the
// provider.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithInternalIssuer provides an optional base URL used for server to server
// calls to the provider.
func WithInternalIssuer(base string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withInternalIssuer = base
		}
	}
}

// WithPostLogoutRedirectURL provides an optional post logout redirect.
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPostLogoutRedirectURL = u
		}
	}
}

// WithTimeout provides an optional timeout for provider calls.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithMaxIDTokenAge provides an optional max age for id_tokens.
func WithMaxIDTokenAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMaxIDTokenAge = d
		}
	}
}

// WithClockSkew provides an optional clock skew leeway.
func WithClockSkew(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClockSkew = d
		}
	}
}

// WithRetryBackoff provides an optional initial backoff for retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRetryBackoff = d
		}
	}
}

// WithDiscoveryRefreshInterval provides an optional minimum interval between
// discovery refreshes.
func WithDiscoveryRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withDiscoveryRefreshInterval = d
		}
	}
}

// WithRoundTripper provides an optional http transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRoundTripper = rt
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
