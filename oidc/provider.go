// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp/oidc/internal/strutils"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// maxUserInfoBytes caps the size of a userinfo response.
const maxUserInfoBytes = 1 << 20

// Provider provides integration with an OIDC provider using the authorization
// code flow with PKCE.  It's safe for concurrent use.
type Provider struct {
	config *Config
	client *http.Client
	logger hclog.Logger

	mu          sync.RWMutex
	metadata    *ProviderMetadata
	keys        *keySet
	lastRefresh time.Time

	refreshGroup singleflight.Group

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider.  Intializing the provider,
// includes making an http request to the provider's discovery endpoint,
// which is retried once on transient failures.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              c.logger().Named("oidc"),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	md, err := p.discover(p.backgroundCtx)
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.setMetadata(md)
	p.logger.Debug("provider discovered", "issuer", md.Issuer, "token_endpoint", md.TokenURL, "jwks_uri", md.JWKSURL)
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Metadata returns a copy of the provider's current (rewritten) discovery
// metadata.
func (p *Provider) Metadata() *ProviderMetadata {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata.Copy()
}

// Config returns the provider's config.
func (p *Provider) Config() *Config {
	return p.config
}

func (p *Provider) discover(ctx context.Context) (*ProviderMetadata, error) {
	const op = "Provider.discover"
	return callProvider(ctx, p.config, op, func(ctx context.Context) (*ProviderMetadata, error) {
		return discover(ctx, p.client, p.config)
	})
}

// setMetadata installs new metadata with a key set built from it.  A new key
// set forces a fresh JWKS fetch.
func (p *Provider) setMetadata(md *ProviderMetadata) {
	keys := newKeySet(md.JWKSURL, p.client, p.config)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata = md
	p.keys = keys
	p.lastRefresh = p.config.Now()
}

// refreshMetadata re-runs discovery after a verification failure.  Concurrent
// callers share one refresh, and refreshes closer together than the
// configured interval are skipped.  It returns true when new metadata was
// installed.
func (p *Provider) refreshMetadata(ctx context.Context) bool {
	const op = "Provider.refreshMetadata"
	v, _, _ := p.refreshGroup.Do("discovery", func() (interface{}, error) {
		p.mu.RLock()
		last := p.lastRefresh
		p.mu.RUnlock()
		if p.config.Now().Sub(last) < p.config.refreshInterval() {
			return false, nil
		}
		md, err := p.discover(ctx)
		if err != nil {
			p.logger.Warn("discovery refresh failed", "op", op, "error", err)
			// keep the current metadata, but don't try again until the
			// interval has passed.
			p.mu.Lock()
			p.lastRefresh = p.config.Now()
			p.mu.Unlock()
			return false, nil
		}
		p.setMetadata(md)
		p.logger.Info("discovery metadata refreshed", "jwks_uri", md.JWKSURL)
		return true, nil
	})
	refreshed, _ := v.(bool)
	return refreshed
}

func (p *Provider) oauth2Config() *oauth2.Config {
	p.mu.RLock()
	md := p.metadata
	p.mu.RUnlock()
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   md.AuthURL,
			TokenURL:  md.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: scopesWithOpenID(p.config.Scopes),
	}
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with an IdP.  The URL carries the attempt's state,
// nonce and S256 PKCE challenge; the verifier is never sent.
//
// See NewAttempt() to create an Attempt with a valid State, Nonce and
// Verifier that will uniquely identify the user's authentication attempt
// through out the flow.
func (p *Provider) AuthURL(ctx context.Context, a *Attempt) (string, error) {
	const op = "Provider.AuthURL"
	if a == nil {
		return "", fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	}
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if a.IsExpired(WithNow(p.config.Now)) {
		return "", fmt.Errorf("%s: attempt is expired: %w", op, ErrInvalidParameter)
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(a.Nonce),
		oauth2.S256ChallengeOption(a.Verifier),
	}
	return p.oauth2Config().AuthCodeURL(a.State, authCodeOpts...), nil
}

// ExchangeCode redeems an authorization code at the token endpoint using the
// PKCE verifier of the attempt that produced it.  The response must carry an
// id_token.  The id_token is not validated; see Exchange.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	const op = "Provider.ExchangeCode"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if err := validateVerifier(verifier); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	oauth2Config := p.oauth2Config()
	tk, err := callProvider(ctx, p.config, op, func(ctx context.Context) (*oauth2.Token, error) {
		return oauth2Config.Exchange(HTTPClientContext(ctx, p.client), code, oauth2.VerifierOption(verifier))
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnreachable) {
			return nil, err
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%s: provider rejected authorization code (status %d, error %q): %w", op, re.Response.StatusCode, re.ErrorCode, ErrTokenExchangeFailed)
		}
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %v: %w", op, err, ErrTokenExchangeFailed)
	}
	ts := newTokenSet(tk)
	if ts.IDToken == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenExchangeFailed, ErrMissingIDToken)
	}
	if ts.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is missing: %w", op, ErrTokenExchangeFailed)
	}
	return ts, nil
}

// Exchange completes the callback of a login attempt: it checks the returned
// state matches the attempt, redeems the code, and validates the id_token
// against the attempt's nonce.  The access_token is checked against the
// id_token's at_hash when present.
func (p *Provider) Exchange(ctx context.Context, a *Attempt, state, code string) (*TokenSet, *Claims, error) {
	const op = "Provider.Exchange"
	if a == nil {
		return nil, nil, fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	}
	if subtle.ConstantTimeCompare([]byte(a.State), []byte(state)) != 1 {
		return nil, nil, fmt.Errorf("%s: authentication state and authorization state are not equal: %w", op, ErrInvalidOrExpiredState)
	}
	if a.IsExpired(WithNow(p.config.Now)) {
		return nil, nil, fmt.Errorf("%s: authentication state is expired: %w", op, ErrInvalidOrExpiredState)
	}
	ts, err := p.ExchangeCode(ctx, code, a.Verifier)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, idt, err := p.verifyIDToken(ctx, ts.IDToken, a.Nonce, true)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	if idt.AccessTokenHash != "" {
		if err := idt.VerifyAccessToken(string(ts.AccessToken)); err != nil {
			return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrInvalidAccessTokenHash)
		}
	}
	return ts, claims, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims.  It
// verifies it's been signed by the provider, it validates the issuer,
// audience, expiry, issued at and nonce.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, nonce string) (*Claims, error) {
	const op = "Provider.VerifyIDToken"
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	claims, _, err := p.verifyIDToken(ctx, t, nonce, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, t IDToken, nonce string, requireNonce bool) (*Claims, *oidc.IDToken, error) {
	const op = "Provider.verifyIDToken"
	if t == "" {
		return nil, nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	idt, err := p.verifySignature(ctx, string(t))
	switch {
	case errors.Is(err, ErrProviderUnreachable):
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	case err != nil:
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, err := newClaims(idt)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := p.checkClaims(claims, nonce, requireNonce); err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	return claims, idt, nil
}

// verifySignature checks the token's signature against the provider's JWKS.
// On failure it refreshes discovery (and with it the key set) at most once
// and tries again, which covers key rotation.  A key set that can't be
// fetched is reported as ErrProviderUnreachable.
func (p *Provider) verifySignature(ctx context.Context, raw string) (*oidc.IDToken, error) {
	idt, err := p.verify(ctx, raw)
	switch {
	case err == nil:
		return idt, nil
	case errors.Is(err, ErrProviderUnreachable):
		return nil, err
	}
	if p.refreshMetadata(ctx) {
		idt, retryErr := p.verify(ctx, raw)
		switch {
		case retryErr == nil:
			return idt, nil
		case errors.Is(retryErr, ErrProviderUnreachable):
			return nil, retryErr
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

// verify checks the signature and algorithm with a go-oidc verifier over the
// current key set; claims are checked by checkClaims.
func (p *Provider) verify(ctx context.Context, raw string) (*oidc.IDToken, error) {
	p.mu.RLock()
	ks := p.keys
	p.mu.RUnlock()
	keys, err := ks.publicKeys(ctx, keyID(raw))
	if err != nil {
		return nil, err
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	v := oidc.NewVerifier(p.config.Issuer, &oidc.StaticKeySet{PublicKeys: keys}, &oidc.Config{
		SupportedSigningAlgs: algs,
		SkipClientIDCheck:    true,
		SkipExpiryCheck:      true,
		SkipIssuerCheck:      true,
	})
	return v.Verify(ctx, raw)
}

func (p *Provider) checkClaims(c *Claims, nonce string, requireNonce bool) error {
	now := p.config.Now()
	skew := p.config.ClockSkew

	if c.Issuer != p.config.Issuer {
		return fmt.Errorf("issuer %q: %w", c.Issuer, ErrInvalidIssuer)
	}
	if !strutils.StrListContains(c.Audience, p.config.ClientID) {
		return fmt.Errorf("audience %q does not contain client ID: %w", c.Audience, ErrInvalidAudience)
	}
	if len(p.config.Audiences) > 0 && !strutils.StrListContainsAny(c.Audience, p.config.Audiences...) {
		return fmt.Errorf("audience %q does not contain a configured audience: %w", c.Audience, ErrInvalidAudience)
	}
	if c.AuthorizedParty != "" && c.AuthorizedParty != p.config.ClientID {
		return fmt.Errorf("azp %q: %w", c.AuthorizedParty, ErrInvalidAuthorizedParty)
	}
	if c.Expiry.IsZero() || !now.Before(c.Expiry.Add(skew)) {
		return fmt.Errorf("expired at %s: %w", c.Expiry, ErrExpiredToken)
	}
	switch {
	case c.IssuedAt.IsZero():
		return fmt.Errorf("iat is missing: %w", ErrInvalidIssuedAt)
	case c.IssuedAt.After(now.Add(skew)):
		return fmt.Errorf("issued in the future at %s: %w", c.IssuedAt, ErrInvalidIssuedAt)
	case now.Sub(c.IssuedAt) > p.config.maxIDTokenAge()+skew:
		return fmt.Errorf("issued too long ago at %s: %w", c.IssuedAt, ErrInvalidIssuedAt)
	}
	if requireNonce || c.Nonce != "" {
		if nonce == "" || subtle.ConstantTimeCompare([]byte(c.Nonce), []byte(nonce)) != 1 {
			return ErrInvalidNonce
		}
	}
	return nil
}

// UserInfo is the set of claims returned by the provider's userinfo endpoint.
type UserInfo map[string]interface{}

// Subject returns the "sub" claim.
func (u UserInfo) Subject() string {
	s, _ := u["sub"].(string)
	return s
}

// UserInfo fetches the authenticated user's claims from the provider's
// userinfo endpoint.  When subject is not empty, the response's "sub" must
// match it.  A provider that rejects the access_token results in
// ErrTokenRejectedByProvider.
func (p *Provider) UserInfo(ctx context.Context, t AccessToken, subject string) (UserInfo, error) {
	const op = "Provider.UserInfo"
	if t == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	md := p.Metadata()
	if md.UserInfoURL == "" {
		return nil, fmt.Errorf("%s: userinfo: %w", op, ErrUnsupportedEndpoint)
	}
	info, err := callProvider(ctx, p.config, op, func(ctx context.Context) (UserInfo, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.UserInfoURL, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create request: %v: %w", err, ErrUserInfoFailed)
		}
		req.Header.Set("Authorization", "Bearer "+string(t))
		req.Header.Set("Accept", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("userinfo returned %s: %w", resp.Status, ErrTokenRejectedByProvider)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("userinfo returned %s: %w", resp.Status, ErrUserInfoFailed)
		}
		var info UserInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return nil, fmt.Errorf("unable to decode userinfo: %v: %w", err, ErrUserInfoFailed)
		}
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if subject != "" && info.Subject() != subject {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, ErrSubjectMismatch)
	}
	return info, nil
}

// Refresh redeems a refresh_token for a new set of tokens.  When the
// provider returns a new id_token it is validated: the subject must not
// change and the nonce, if present, must match prev's.  Without a new
// id_token, prev's claims are carried over.  A refresh_token the provider no
// longer accepts results in ErrTokenRejectedByProvider.
func (p *Provider) Refresh(ctx context.Context, rt RefreshToken, prev *Claims) (*TokenSet, *Claims, error) {
	const op = "Provider.Refresh"
	if rt == "" {
		return nil, nil, fmt.Errorf("%s: refresh_token is empty: %w", op, ErrInvalidParameter)
	}
	if prev == nil {
		return nil, nil, fmt.Errorf("%s: previous claims are nil: %w", op, ErrNilParameter)
	}
	oauth2Config := p.oauth2Config()
	tk, err := callProvider(ctx, p.config, op, func(ctx context.Context) (*oauth2.Token, error) {
		src := oauth2Config.TokenSource(HTTPClientContext(ctx, p.client), &oauth2.Token{RefreshToken: string(rt)})
		return src.Token()
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnreachable) {
			return nil, nil, err
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, nil, fmt.Errorf("%s: refresh rejected (status %d, error %q): %w", op, re.Response.StatusCode, re.ErrorCode, ErrTokenRejectedByProvider)
		}
		return nil, nil, fmt.Errorf("%s: unable to refresh tokens: %v: %w", op, err, ErrTokenExchangeFailed)
	}
	ts := newTokenSet(tk)
	if ts.RefreshToken == "" {
		ts.RefreshToken = rt
	}
	if ts.IDToken == "" {
		return ts, prev.Copy(), nil
	}
	claims, _, err := p.verifyIDToken(ctx, ts.IDToken, prev.Nonce, false)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: refreshed id_token failed verification: %w", op, err)
	}
	if claims.Subject != prev.Subject {
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrSubjectMismatch)
	}
	return ts, claims, nil
}

// EndSessionURL returns the provider's end-session (RP initiated logout) URL
// with the id_token hint, client ID and post logout redirect.  An empty
// postLogoutRedirect uses the configured PostLogoutRedirectURL.
func (p *Provider) EndSessionURL(idTokenHint IDToken, postLogoutRedirect string) (string, error) {
	const op = "Provider.EndSessionURL"
	md := p.Metadata()
	if md.EndSessionURL == "" {
		return "", fmt.Errorf("%s: end session: %w", op, ErrUnsupportedEndpoint)
	}
	u, err := url.Parse(md.EndSessionURL)
	if err != nil {
		return "", fmt.Errorf("%s: end session endpoint %q is invalid: %v: %w", op, md.EndSessionURL, err, ErrInvalidParameter)
	}
	if postLogoutRedirect == "" {
		postLogoutRedirect = p.config.PostLogoutRedirectURL
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
