// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/square/go-jose.v2"
)

// maxJWKSBytes caps the size of a JWKS response.
const maxJWKSBytes = 1 << 20

// keySet caches the provider's signing keys.  Keys are fetched on first use
// through callProvider, so an unreachable JWKS endpoint is reported as
// ErrProviderUnreachable rather than as a bad signature.  A new keySet is
// created whenever discovery metadata is installed.
type keySet struct {
	url    string
	client *http.Client
	config *Config

	mu      sync.RWMutex
	keys    []jose.JSONWebKey
	fetched bool

	fetchGroup singleflight.Group
}

func newKeySet(url string, client *http.Client, c *Config) *keySet {
	return &keySet{
		url:    url,
		client: client,
		config: c,
	}
}

// publicKeys returns the verification keys for a token with the key id.  The
// set is fetched when it hasn't been loaded yet or when kid is unknown, which
// picks up keys added by the provider.
func (k *keySet) publicKeys(ctx context.Context, kid string) ([]crypto.PublicKey, error) {
	k.mu.RLock()
	keys, fetched := k.keys, k.fetched
	k.mu.RUnlock()
	if fetched && (kid == "" || hasKeyID(keys, kid)) {
		return publicKeys(keys), nil
	}
	v, err, _ := k.fetchGroup.Do("jwks", func() (interface{}, error) {
		keys, err := k.fetch(ctx)
		if err != nil {
			return nil, err
		}
		k.mu.Lock()
		k.keys, k.fetched = keys, true
		k.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return publicKeys(v.([]jose.JSONWebKey)), nil
}

func hasKeyID(keys []jose.JSONWebKey, kid string) bool {
	for _, k := range keys {
		if k.KeyID == kid {
			return true
		}
	}
	return false
}

func publicKeys(keys []jose.JSONWebKey) []crypto.PublicKey {
	pub := make([]crypto.PublicKey, 0, len(keys))
	for _, k := range keys {
		pub = append(pub, k.Key)
	}
	return pub
}

// keyID returns the "kid" header of a compact JWS, or "" when it has none or
// can't be parsed.
func keyID(raw string) string {
	jws, err := jose.ParseSigned(raw)
	if err != nil || len(jws.Signatures) == 0 {
		return ""
	}
	return jws.Signatures[0].Header.KeyID
}

func (k *keySet) fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	const op = "oidc.keySet.fetch"
	set, err := callProvider(ctx, k.config, op, func(ctx context.Context) (*jose.JSONWebKeySet, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := k.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{url: k.url, status: resp.Status, code: resp.StatusCode}
		}
		var set jose.JSONWebKeySet
		if err := json.Unmarshal(body, &set); err != nil {
			return nil, fmt.Errorf("unable to decode jwks: %w", err)
		}
		return &set, nil
	})
	switch {
	case errors.Is(err, ErrProviderUnreachable):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProviderUnreachable, err)
	}

	keys := make([]jose.JSONWebKey, 0, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Use == "enc" {
			continue
		}
		switch jwk.Key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			keys = append(keys, jwk)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %s has no signing keys: %w", op, k.url, ErrProviderUnreachable)
	}
	return keys, nil
}
