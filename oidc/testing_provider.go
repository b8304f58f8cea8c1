// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/oidc-webapp/oidc/internal/strutils"
	"github.com/hashicorp/oidc-webapp/sdk/id"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier.  It implements discovery, the authorization
// endpoint, the token endpoint (authorization_code with PKCE and
// refresh_token grants), JWKS, userinfo and end-session.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                  sync.Mutex
	jwks                *jose.JSONWebKeySet
	keyID               string
	ecdsaPublicKey      string
	ecdsaPrivateKey     string
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	userInfoSubject     string
	customClaims        map[string]interface{}
	customAudience      []string
	customIssuer        string
	idTokenNonce        *string
	idTokenExpiry       time.Duration
	idTokenIssuedAt     time.Time
	accessTokenExpiry   time.Duration
	omitIDToken         bool
	omitRefreshToken    bool
	disableUserInfo     bool
	disableEndSession   bool
	denyAuthorization   string
	tokenFailure        int
	userInfoFailure     int
	jwksFailure         int

	codes         map[string]testAuthCode
	refreshTokens map[string]testGrant
	accessTokens  map[string]testGrant
	endSessions   []url.Values

	discoveryRequests int
	jwksRequests      int
	tokenRequests     int
	userInfoRequests  int

	t *testing.T
}

type testAuthCode struct {
	nonce       string
	challenge   string
	redirectURI string
}

type testGrant struct {
	subject string
	nonce   string
}

// StartTestProvider creates a disposable TestProvider.  It's stopped
// automatically when the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                 t,
		replySubject:      "alice@example.com",
		idTokenExpiry:     5 * time.Minute,
		accessTokenExpiry: 5 * time.Minute,
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		codes:         map[string]testAuthCode{},
		refreshTokens: map[string]testGrant{},
		accessTokens:  map[string]testGrant{},
	}
	p.rotateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()
	p.allowedRedirectURIs = []string{"https://example.com/callback"}
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Issuer returns the issuer the provider advertises and puts in tokens.
func (p *TestProvider) Issuer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issuer()
}

func (p *TestProvider) issuer() string {
	if p.customIssuer != "" {
		return p.customIssuer
	}
	return p.Addr()
}

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns a client that trusts the provider's certificate and
// does not follow redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	return &http.Client{
		Transport: p.httpServer.Client().Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth.  When
// not set, every authorization gets a random code.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of
// "https://example.com/callback" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpectedSubject is for configuring the expected subject for
// OIDC id_tokens, access_tokens and userinfo.
func (p *TestProvider) SetExpectedSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetUserInfoReply sets the claims returned by the userinfo endpoint; "sub"
// is always added.
func (p *TestProvider) SetUserInfoReply(resp map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = resp
}

// SetUserInfoSubject overrides the "sub" returned by userinfo.
func (p *TestProvider) SetUserInfoSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoSubject = sub
}

// SetCustomClaims lets you set claims to return in the JWTs issued by the
// OIDC workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT issued
// by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetCustomIssuer configures the issuer advertised by discovery and embedded
// in JWTs.  Endpoints are advertised under it.
func (p *TestProvider) SetCustomIssuer(iss string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customIssuer = iss
}

// SetIDTokenNonce overrides the nonce embedded in id_tokens.
func (p *TestProvider) SetIDTokenNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenNonce = &nonce
}

// SetIDTokenExpiry sets the lifetime of issued id_tokens.  A negative
// duration issues already expired tokens.
func (p *TestProvider) SetIDTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenExpiry = d
}

// SetIDTokenIssuedAt overrides the iat of issued id_tokens.
func (p *TestProvider) SetIDTokenIssuedAt(iat time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenIssuedAt = iat
}

// SetAccessTokenExpiry sets the lifetime of issued access_tokens.
func (p *TestProvider) SetAccessTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenExpiry = d
}

// OmitIDTokens forces an error state where the /token endpoint does not return
// id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens stops the /token endpoint from returning refresh_tokens.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// DisableEndSession omits the end_session_endpoint from the discovery
// config.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// DenyAuthorization makes /auth redirect back with the error code.  An empty
// code allows authorization again.
func (p *TestProvider) DenyAuthorization(errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyAuthorization = errorCode
}

// SetTokenFailure makes /token fail with the status code. Zero restores
// normal behavior.
func (p *TestProvider) SetTokenFailure(statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenFailure = statusCode
}

// SetUserInfoFailure makes /userinfo fail with the status code. Zero
// restores normal behavior.
func (p *TestProvider) SetUserInfoFailure(statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoFailure = statusCode
}

// SetJWKSFailure makes /certs fail with the status code. Zero restores
// normal behavior.
func (p *TestProvider) SetJWKSFailure(statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksFailure = statusCode
}

// RevokeTokens invalidates every access_token and refresh_token issued so
// far.
func (p *TestProvider) RevokeTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokens = map[string]testGrant{}
	p.refreshTokens = map[string]testGrant{}
}

// RotateSigningKeys replaces the signing key.  The old key is removed from
// the JWKS.
func (p *TestProvider) RotateSigningKeys() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotateKeys(p.t)
}

func (p *TestProvider) rotateKeys(t *testing.T) {
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	kid, err := id.New("")
	require.NoError(t, err)
	p.keyID = kid
	p.jwks = testJWKS(t, p.ecdsaPublicKey, kid)
}

// DiscoveryRequests returns the number of discovery documents served.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// JWKSRequests returns the number of requests made to /certs.
func (p *TestProvider) JWKSRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksRequests
}

// TokenRequests returns the number of requests made to /token.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// UserInfoRequests returns the number of requests made to /userinfo.
func (p *TestProvider) UserInfoRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userInfoRequests
}

// EndSessionRequests returns the query of every request made to /logout.
func (p *TestProvider) EndSessionRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.endSessions...)
}

// Authorize plays the browser's part of the authorization request: it
// follows authURL to the provider and returns the redirect the provider sent
// back (the relying party's callback with code and state, or an error).
func (p *TestProvider) Authorize(authURL string) (*url.URL, error) {
	resp, err := p.HTTPClient().Get(authURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("authorize: unexpected status %d: %s", resp.StatusCode, body)
	}
	return url.Parse(resp.Header.Get("Location"))
}

// SignJWT signs the claims with the provider's current key.
func (p *TestProvider) SignJWT(claims jwt.Claims, privateClaims interface{}) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, err := p.sign(claims, privateClaims)
	require.NoError(p.t, err)
	return raw
}

// DefaultIDTokenClaims returns valid id_token claims for the provider's
// issuer, the client and the expected subject.
func (p *TestProvider) DefaultIDTokenClaims() jwt.Claims {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	return jwt.Claims{
		Issuer:   p.issuer(),
		Subject:  p.replySubject,
		Audience: jwt.Audience{p.clientID},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(p.idTokenExpiry)),
	}
}

func (p *TestProvider) sign(claims jwt.Claims, privateClaims interface{}) (string, error) {
	key, err := parseECPrivateKey(p.ecdsaPrivateKey)
	if err != nil {
		return "", fmt.Errorf("invalid signing key: %w", err)
	}
	return signES256(key, p.keyID, claims, privateClaims)
}

func signES256(key *ecdsa.PrivateKey, kid string, claims jwt.Claims, privateClaims interface{}) (string, error) {
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, opts)
	if err != nil {
		return "", err
	}
	b := jwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		b = b.Claims(privateClaims)
	}
	return b.CompactSerialize()
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	u, err := url.Parse(qv.Get("redirect_uri"))
	if err != nil || qv.Get("redirect_uri") == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("state", qv.Get("state"))
	q.Set("error", errorCode)
	if errorMessage != "" {
		q.Set("error_description", errorMessage)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.discoveryRequests++
		iss := p.issuer()
		reply := ProviderMetadata{
			Issuer:               iss,
			AuthURL:              iss + "/auth",
			TokenURL:             iss + "/token",
			JWKSURL:              iss + "/certs",
			UserInfoURL:          iss + "/userinfo",
			EndSessionURL:        iss + "/logout",
			Algorithms:           []string{string(ES256)},
			CodeChallengeMethods: []string{string(S256)},
		}
		if p.disableUserInfo {
			reply.UserInfoURL = ""
		}
		if p.disableEndSession {
			reply.EndSessionURL = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/auth":
		p.handleAuth(w, req)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.jwksRequests++
		if p.jwksFailure != 0 {
			w.WriteHeader(p.jwksFailure)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		p.handleToken(w, req)

	case "/userinfo":
		p.handleUserInfo(w, req)

	case "/logout":
		p.endSessions = append(p.endSessions, req.URL.Query())
		if redirect := req.URL.Query().Get("post_logout_redirect_uri"); redirect != "" {
			http.Redirect(w, req, redirect, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) handleAuth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri")
	if !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch {
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
		return
	case !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid"):
		p.writeAuthErrorResponse(w, req, "invalid_scope", "")
		return
	case qv.Get("client_id") != p.clientID:
		p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
		return
	case qv.Get("state") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
		return
	case qv.Get("code_challenge_method") != string(S256) || qv.Get("code_challenge") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "S256 code challenge required")
		return
	case p.denyAuthorization != "":
		p.writeAuthErrorResponse(w, req, p.denyAuthorization, "")
		return
	}

	code := p.expectedAuthCode
	if code == "" {
		var err error
		if code, err = id.New(""); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	p.codes[code] = testAuthCode{
		nonce:       qv.Get("nonce"),
		challenge:   qv.Get("code_challenge"),
		redirectURI: redirectURI,
	}

	u, _ := url.Parse(redirectURI)
	q := u.Query()
	q.Set("state", qv.Get("state"))
	q.Set("code", code)
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.tokenRequests++
	if p.tokenFailure != 0 {
		p.writeTokenErrorResponse(w, p.tokenFailure, "server_error", "configured failure")
		return
	}
	clientID, clientSecret, ok := req.BasicAuth()
	if !ok {
		clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
	}
	if clientID != p.clientID || clientSecret != p.clientSecret {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
		return
	}

	var grant testGrant
	switch req.FormValue("grant_type") {
	case "authorization_code":
		code := req.FormValue("code")
		ac, found := p.codes[code]
		switch {
		case !found:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		case req.FormValue("redirect_uri") != ac.redirectURI:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
			return
		case oauth2.S256ChallengeFromVerifier(req.FormValue("code_verifier")) != ac.challenge:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
		// codes are single use
		delete(p.codes, code)
		grant = testGrant{subject: p.replySubject, nonce: ac.nonce}

	case "refresh_token":
		rt := req.FormValue("refresh_token")
		g, found := p.refreshTokens[rt]
		if !found {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
			return
		}
		delete(p.refreshTokens, rt)
		grant = g

	default:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
		return
	}

	reply, err := p.issueTokens(grant)
	if err != nil {
		p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	_ = p.writeJSON(w, reply)
}

type testTokenReply struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func (p *TestProvider) issueTokens(grant testGrant) (*testTokenReply, error) {
	now := time.Now()
	aud := jwt.Audience{p.clientID}
	if len(p.customAudience) > 0 {
		aud = jwt.Audience(p.customAudience)
	}

	atClaims := jwt.Claims{
		Issuer:    p.issuer(),
		Subject:   grant.subject,
		Audience:  aud,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.accessTokenExpiry)),
	}
	atPrivate := map[string]interface{}{"typ": "Bearer", "azp": p.clientID}
	for k, v := range p.customClaims {
		atPrivate[k] = v
	}
	accessToken, err := p.sign(atClaims, atPrivate)
	if err != nil {
		return nil, err
	}
	p.accessTokens[accessToken] = grant

	reply := &testTokenReply{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(p.accessTokenExpiry.Seconds()),
	}

	if !p.omitRefreshToken {
		rt, err := id.New("rt")
		if err != nil {
			return nil, err
		}
		p.refreshTokens[rt] = grant
		reply.RefreshToken = rt
	}

	if !p.omitIDToken {
		iat := now
		if !p.idTokenIssuedAt.IsZero() {
			iat = p.idTokenIssuedAt
		}
		idClaims := jwt.Claims{
			Issuer:   p.issuer(),
			Subject:  grant.subject,
			Audience: aud,
			IssuedAt: jwt.NewNumericDate(iat),
			Expiry:   jwt.NewNumericDate(now.Add(p.idTokenExpiry)),
		}
		idPrivate := map[string]interface{}{
			"at_hash": testAccessTokenHash(accessToken),
		}
		nonce := grant.nonce
		if p.idTokenNonce != nil {
			nonce = *p.idTokenNonce
		}
		if nonce != "" {
			idPrivate["nonce"] = nonce
		}
		for k, v := range p.customClaims {
			idPrivate[k] = v
		}
		idToken, err := p.sign(idClaims, idPrivate)
		if err != nil {
			return nil, err
		}
		reply.IDToken = idToken
	}
	return reply, nil
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	if p.disableUserInfo {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.userInfoRequests++
	if p.userInfoFailure != 0 {
		w.WriteHeader(p.userInfoFailure)
		return
	}
	bearer := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	grant, ok := p.accessTokens[bearer]
	if bearer == "" || !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	reply := map[string]interface{}{}
	for k, v := range p.replyUserinfo {
		reply[k] = v
	}
	reply["sub"] = grant.subject
	if p.userInfoSubject != "" {
		reply["sub"] = p.userInfoSubject
	}
	_ = p.writeJSON(w, reply)
}

// testAccessTokenHash computes an ES256 at_hash.
func testAccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey, kid string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     kid,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}
