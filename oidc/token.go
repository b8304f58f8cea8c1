// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenExpirySkew defines a time skew when checking a TokenSet's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// TokenSet is the set of tokens returned by the provider's token endpoint.
// Every token field redacts itself when printed or marshaled to JSON.
type TokenSet struct {
	AccessToken  AccessToken  `json:"access_token"`
	IDToken      IDToken      `json:"id_token"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`

	// Expiry is the access_token's expiration. A zero value means the
	// provider did not say.
	Expiry time.Time `json:"expiry,omitempty"`
}

// newTokenSet converts an oauth2 token response.  The id_token is returned
// in the response's extra fields.
func newTokenSet(t *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  AccessToken(t.AccessToken),
		RefreshToken: RefreshToken(t.RefreshToken),
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if raw, ok := t.Extra("id_token").(string); ok {
		ts.IDToken = IDToken(raw)
	}
	return ts
}

// IsExpired returns true if the access_token has expired.  Supports the
// WithExpirySkew and WithNow options; the default skew is
// DefaultTokenExpirySkew.
func (t *TokenSet) IsExpired(opt ...Option) bool {
	if t.Expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.Expiry.Round(0).Before(opts.now().Add(opts.withExpirySkew))
}

// Valid returns true if the set carries an unexpired access_token.
func (t *TokenSet) Valid(opt ...Option) bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.IsExpired(opt...)
}

type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

func tokenDefaults() tokenOptions {
	return tokenOptions{withExpirySkew: DefaultTokenExpirySkew}
}

func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

func (o tokenOptions) now() time.Time {
	if o.withNowFunc != nil {
		return o.withNowFunc()
	}
	return time.Now()
}
