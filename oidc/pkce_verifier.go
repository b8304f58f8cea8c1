// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/hashicorp/oidc-webapp/sdk/id"
	"golang.org/x/oauth2"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// PKCE code challenge methods as defined by RFC 7636.
	//
	// See: https://tools.ietf.org/html/rfc7636#page-9
	S256 ChallengeMethod = "S256" // SHA-256
)

const (
	// verifierLen is the length of a generated verifier: 32 random bytes,
	// base64url encoded.
	verifierLen = 43

	minVerifierLen = 43
	maxVerifierLen = 128
)

// CodeVerifier represents an OAuth PKCE code verifier.
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
type CodeVerifier interface {
	// Verifier returns the code verifier (see:
	// https://tools.ietf.org/html/rfc7636#section-4.1)
	Verifier() string

	// Challenge returns the code verifier's code challenge (see:
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Challenge() string

	// Method returns the code verifier's challenge method (see
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Method() ChallengeMethod

	// Copy returns a copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method.  It implements the CodeVerifier interface.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure that S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier).
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
func NewCodeVerifier(opt ...Option) (*S256Verifier, error) {
	const op = "oidc.NewCodeVerifier"
	data, err := id.NewWithEntropy(32, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newS256Verifier(data)
}

// NewCodeVerifierFromString validates an existing verifier (for example one
// loaded from a login attempt store) and returns it as a CodeVerifier.  The
// verifier must be 43-128 characters from the unreserved set
// [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~".
func NewCodeVerifierFromString(verifier string) (*S256Verifier, error) {
	const op = "oidc.NewCodeVerifierFromString"
	if err := validateVerifier(verifier); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newS256Verifier(verifier)
}

func newS256Verifier(verifier string) (*S256Verifier, error) {
	v := &S256Verifier{
		verifier: verifier,
		method:   S256,
	}
	var err error
	if v.challenge, err = CreateCodeChallenge(v.method, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *S256Verifier) Verifier() string        { return v.verifier }  // Verifier implements the CodeVerifier.Verifier() interface function.
func (v *S256Verifier) Challenge() string       { return v.challenge } // Challenge implements the CodeVerifier.Challenge() interface function.
func (v *S256Verifier) Method() ChallengeMethod { return v.method }    // Method implements the CodeVerifier.Method() interface function.

// Copy returns a copy of the verifier.
func (v *S256Verifier) Copy() CodeVerifier {
	return &S256Verifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
//
// See: https://tools.ietf.org/html/rfc7636#section-4.2
func CreateCodeChallenge(method ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "CreateCodeChallenge"
	switch method {
	case S256:
		return oauth2.S256ChallengeFromVerifier(v.Verifier()), nil
	default:
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}

func validateVerifier(v string) error {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return fmt.Errorf("length %d is outside %d-%d: %w", len(v), minVerifierLen, maxVerifierLen, ErrInvalidCodeVerifier)
	}
	for _, r := range v {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-', r == '.', r == '_', r == '~':
		default:
			return fmt.Errorf("character %q is not allowed: %w", r, ErrInvalidCodeVerifier)
		}
	}
	return nil
}
