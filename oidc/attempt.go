// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// DefaultAttemptExpirySkew defines a default time skew when checking an
// Attempt's expiration.
const DefaultAttemptExpirySkew = 1 * time.Second

// DefaultAttemptTTL is the default lifetime of a login attempt.
const DefaultAttemptTTL = 10 * time.Minute

// Attempt represents one in-flight authorization code flow for a user.  It
// carries the state, nonce and PKCE verifier generated when the user was sent
// to the provider, plus the local path to return to once the flow completes.
// State and Nonce are never equal.
type Attempt struct {
	// State is an opaque value used to maintain state between the
	// authorization request and the callback.
	State string `json:"state"`

	// Nonce associates the client session with the id_token and mitigates
	// replay attacks.
	Nonce string `json:"nonce"`

	// Verifier is the PKCE code verifier.  Only its S256 challenge is sent to
	// the provider in the authorization request.
	Verifier string `json:"code_verifier"`

	// ReturnTo is a local path the user is redirected to after login.
	ReturnTo string `json:"return_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewAttempt creates a new login attempt with freshly generated state, nonce
// and verifier.  Supported options: WithNow, WithReturnTo
func NewAttempt(expireIn time.Duration, opt ...Option) (*Attempt, error) {
	const op = "oidc.NewAttempt"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getAttemptOpts(opt...)
	state, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	if state == nonce {
		return nil, fmt.Errorf("%s: state and nonce are equal: %w", op, ErrIDGeneratorFailed)
	}
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate code verifier: %w", op, err)
	}
	now := opts.now()
	return &Attempt{
		State:     state,
		Nonce:     nonce,
		Verifier:  v.Verifier(),
		ReturnTo:  opts.withReturnTo,
		CreatedAt: now,
		ExpiresAt: now.Add(expireIn),
	}, nil
}

// Challenge returns the S256 PKCE challenge for the attempt's verifier.
func (a *Attempt) Challenge() string {
	v := &S256Verifier{verifier: a.Verifier}
	c, _ := CreateCodeChallenge(S256, v)
	return c
}

// IsExpired returns true if the attempt has expired. Supports the
// WithExpirySkew and WithNow options and if no skew is provided it will use
// the DefaultAttemptExpirySkew.
func (a *Attempt) IsExpired(opt ...Option) bool {
	opts := getAttemptOpts(opt...)
	return a.ExpiresAt.Before(opts.now().Add(opts.withExpirySkew))
}

// Validate checks the attempt is well formed.
func (a *Attempt) Validate() error {
	const op = "Attempt.Validate"
	switch {
	case a == nil:
		return fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	case a.State == "":
		return fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	case a.Nonce == "":
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	case a.State == a.Nonce:
		return fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if err := validateVerifier(a.Verifier); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// attemptOptions is the set of available options for Attempt functions
type attemptOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
	withReturnTo   string
}

// attemptDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func attemptDefaults() attemptOptions {
	return attemptOptions{
		withExpirySkew: DefaultAttemptExpirySkew,
	}
}

// getAttemptOpts gets the attempt defaults and applies the opt overrides passed in
func getAttemptOpts(opt ...Option) attemptOptions {
	opts := attemptDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

func (o attemptOptions) now() time.Time {
	if o.withNowFunc != nil {
		return o.withNowFunc()
	}
	return time.Now()
}

// WithReturnTo provides an optional local path to redirect to once the login
// attempt completes.
func WithReturnTo(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withReturnTo = path
		}
	}
}
