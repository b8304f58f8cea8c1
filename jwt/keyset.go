// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	sdkhttp "github.com/hashicorp/oidc-webapp/sdk/http"
)

const (
	// maxJWKSBytes caps the size of a fetched key set.
	maxJWKSBytes = 1 << 20

	defaultFetchTimeout = 10 * time.Second
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {

	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
// Keys are cached; a token signed by a key that isn't cached causes the set
// to be fetched again, at most once per minimum refresh interval.  It's safe
// for concurrent use.
type JSONWebKeySet struct {
	jwksURL            string
	client             *http.Client
	minRefreshInterval time.Duration

	mu        sync.RWMutex
	keys      []jose.JSONWebKey
	lastFetch time.Time

	fetchGroup singleflight.Group
}

// StaticKeySet verifies JWT signatures using local PEM-encoded public keys.
type StaticKeySet struct {
	publicKeys []interface{}
}

// NewOIDCDiscoveryKeySet returns a KeySet that verifies JWT signatures using keys from the
// JSON Web Key Set (JWKS) published in the discovery document at the given issuer.
// The client used to obtain the discovery document and keys will verify server
// certificates using the root certificates provided by discoveryCAPEM.
func NewOIDCDiscoveryKeySet(ctx context.Context, issuer string, discoveryCAPEM string, opt ...Option) (*JSONWebKeySet, error) {
	const op = "jwt.NewOIDCDiscoveryKeySet"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer must not be empty: %w", op, ErrInvalidParameter)
	}
	client, err := keySetClient(ctx, discoveryCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: discovery failed: %v: %w", op, err, ErrKeySetUnavailable)
	}
	var discovered struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&discovered); err != nil || discovered.JWKSURL == "" {
		return nil, fmt.Errorf("%s: discovery document has no jwks_uri: %w", op, ErrKeySetUnavailable)
	}
	return newJSONWebKeySet(discovered.JWKSURL, client, opt...), nil
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys from the JSON Web
// Key Set (JWKS) at the given jwksURL. The client used to obtain the remote JWKS will verify
// server certificates using the root certificates provided by jwksCAPEM.  An
// *http.Client carried by ctx under oauth2.HTTPClient is used instead when
// present.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string, opt ...Option) (*JSONWebKeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwksURL must not be empty: %w", op, ErrInvalidParameter)
	}
	client, err := keySetClient(ctx, jwksCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newJSONWebKeySet(jwksURL, client, opt...), nil
}

func newJSONWebKeySet(jwksURL string, client *http.Client, opt ...Option) *JSONWebKeySet {
	opts := getKeySetOpts(opt...)
	return &JSONWebKeySet{
		jwksURL:            jwksURL,
		client:             client,
		minRefreshInterval: opts.withMinRefreshInterval,
	}
}

// JWKSURL returns the URL keys are fetched from.
func (ks *JSONWebKeySet) JWKSURL() string { return ks.jwksURL }

// VerifySignature parses the given JWT, verifies its signature using JWKS keys, and returns
// the claims in its payload. The given JWT must be of the JWS compact serialization form.
// Failing to fetch the keys results in ErrKeySetUnavailable.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed jwt: %v: %w", op, err, ErrInvalidSignature)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one signature: %w", op, ErrInvalidSignature)
	}
	kid := jws.Signatures[0].Header.KeyID

	ks.mu.RLock()
	keys := ks.keys
	fetched := !ks.lastFetch.IsZero()
	ks.mu.RUnlock()
	if !fetched {
		if keys, err = ks.fetch(ctx, false); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if payload, ok := verifyWithKeys(jws, kid, keys); ok {
		return decodePayload(op, payload)
	}

	// the signing key may have been rotated in
	refreshed, err := ks.fetch(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payload, ok := verifyWithKeys(jws, kid, refreshed); ok {
		return decodePayload(op, payload)
	}
	return nil, fmt.Errorf("%s: no known key successfully validated the token signature: %w", op, ErrInvalidSignature)
}

// fetch loads the remote key set.  Concurrent callers share one request.
// When rateLimited, a fetch closer to the previous one than the minimum
// refresh interval returns the cached keys.
func (ks *JSONWebKeySet) fetch(ctx context.Context, rateLimited bool) ([]jose.JSONWebKey, error) {
	v, err, _ := ks.fetchGroup.Do("jwks", func() (interface{}, error) {
		ks.mu.RLock()
		keys, last := ks.keys, ks.lastFetch
		ks.mu.RUnlock()
		if rateLimited && !last.IsZero() && time.Since(last) < ks.minRefreshInterval {
			return keys, nil
		}
		keys, err := ks.fetchKeys(ctx)
		if err != nil {
			return nil, err
		}
		ks.mu.Lock()
		ks.keys = keys
		ks.lastFetch = time.Now()
		ks.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]jose.JSONWebKey), nil
}

func (ks *JSONWebKeySet) fetchKeys(ctx context.Context) ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %v: %w", err, ErrKeySetUnavailable)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", ks.jwksURL, err, ErrKeySetUnavailable)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", ks.jwksURL, err, ErrKeySetUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s: %w", ks.jwksURL, resp.Status, ErrKeySetUnavailable)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("unable to decode keys: %v: %w", err, ErrKeySetUnavailable)
	}
	return set.Keys, nil
}

// verifyWithKeys tries the key matching kid, or every signing key when the
// token has no kid.
func verifyWithKeys(jws *jose.JSONWebSignature, kid string, keys []jose.JSONWebKey) ([]byte, bool) {
	for i := range keys {
		k := &keys[i]
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if kid != "" && k.KeyID != kid {
			continue
		}
		if payload, err := jws.Verify(k); err == nil {
			return payload, true
		}
	}
	return nil, false
}

func decodePayload(op string, payload []byte) (map[string]interface{}, error) {
	allClaims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &allClaims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %v: %w", op, err, ErrInvalidClaims)
	}
	return allClaims, nil
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using PEM-encoded public keys.
// The given publicKeys must be of PEM-encoded x509 certificate or PKIX public key forms.
func NewStaticKeySet(publicKeys []string) (KeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: at least one public key is required: %w", op, ErrInvalidParameter)
	}
	parsedPublicKeys := make([]interface{}, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := parsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parsedPublicKeys = append(parsedPublicKeys, key)
	}

	return StaticKeySet{
		publicKeys: parsedPublicKeys,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using local PEM-encoded public keys,
// and returns the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	parsedJWT, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed jwt: %v: %w", op, err, ErrInvalidSignature)
	}

	var valid bool
	allClaims := map[string]interface{}{}
	for _, key := range ks.publicKeys {
		if err := parsedJWT.Claims(key, &allClaims); err == nil {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("%s: no known key successfully validated the token signature: %w", op, ErrInvalidSignature)
	}

	return allClaims, nil
}

// parsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from PEMs.
func parsePublicKeyPEM(data []byte) (interface{}, error) {
	block, _ := pem.Decode(data)
	if block != nil {
		var rawKey interface{}
		var err error
		if rawKey, err = x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				rawKey = cert.PublicKey
			} else {
				return nil, fmt.Errorf("unable to parse public key: %v: %w", err, ErrInvalidParameter)
			}
		}

		switch k := rawKey.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			return k, nil
		}
	}

	return nil, fmt.Errorf("data does not contain any valid RSA, ECDSA or Ed25519 public keys: %w", ErrInvalidParameter)
}

// keySetClient returns the *http.Client carried by ctx, or a new client that
// trusts caPEM (the system roots when empty).
func keySetClient(ctx context.Context, caPEM string) (*http.Client, error) {
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c, nil
	}
	client, err := sdkhttp.NewClient(caPEM, defaultFetchTimeout)
	if err != nil {
		if errors.Is(err, sdkhttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("could not parse CA PEM value successfully: %w", ErrInvalidParameter)
		}
		return nil, err
	}
	return client, nil
}
