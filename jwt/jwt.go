// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// DefaultLeeway defines the amount of leeway that's used by default
// when validating the time-based claims of a JWT.
const DefaultLeeway = 150 * time.Second

// Validator validates JSON Web Tokens (JWT) by providing signature
// verification and claims set validation.
type Validator struct {
	keySets            []KeySet
	normalizeAudiences bool
}

// NewValidator returns a Validator that uses the given KeySets to verify JWT signatures.
// The KeySets are tried in order and the first one to verify the signature
// wins.
func NewValidator(keySets ...KeySet) (*Validator, error) {
	return NewValidatorWithOptions(keySets, nil)
}

// NewValidatorWithOptions is NewValidator with options.  Supported options:
// WithNormalizedAudiences.
func NewValidatorWithOptions(keySets []KeySet, opt []Option) (*Validator, error) {
	const op = "jwt.NewValidator"
	if len(keySets) == 0 {
		return nil, fmt.Errorf("%s: keySets must not be empty: %w", op, ErrInvalidParameter)
	}
	for _, ks := range keySets {
		if ks == nil {
			return nil, fmt.Errorf("%s: keySets must not contain a nil KeySet: %w", op, ErrInvalidParameter)
		}
	}
	opts := getValidatorOpts(opt...)
	return &Validator{
		keySets:            keySets,
		normalizeAudiences: opts.withNormalizedAudiences,
	}, nil
}

// Expected defines the expected claims values to assert when validating a JWT.
// For claims that involve validation of the JWT with respect to time, leeway
// fields are provided to account for potential clock skew.
type Expected struct {
	// The expected JWT "iss" (issuer) claim value. If empty, validation is skipped.
	Issuer string

	// The expected JWT "sub" (subject) claim value. If empty, validation is skipped.
	Subject string

	// The expected JWT "jti" (JWT ID) claim value. If empty, validation is skipped.
	ID string

	// The list of expected JWT "aud" (audience) claim values to match against.
	// The JWT claim will be considered valid if it matches any of the expected
	// audiences. If empty, validation is skipped.
	Audiences []string

	// SigningAlgorithms provides the list of expected JWS "alg" (algorithm) header
	// parameter values to match against. The JWS header parameter will be considered
	// valid if it matches any of the expected signing algorithms. The following
	// algorithms are supported: RS256, RS384, RS512, ES256, ES384, ES512, PS256,
	// PS384, PS512, EdDSA. If empty, defaults to RS256.
	SigningAlgorithms []Alg

	// NotBeforeLeeway provides the option to set an amount of leeway to use when
	// validating the "nbf" (Not Before) claim. If the duration is zero or not
	// provided, a default leeway of 150 seconds will be used. If the duration is
	// negative, no leeway will be used.
	NotBeforeLeeway time.Duration

	// ExpirationLeeway provides the option to set an amount of leeway to use when
	// validating the "exp" (Expiration Time) claim. If the duration is zero or not
	// provided, a default leeway of 150 seconds will be used. If the duration is
	// negative, no leeway will be used.
	ExpirationLeeway time.Duration

	// ClockSkewLeeway provides the option to set an amount of leeway to use when
	// validating the "nbf" (Not Before), "exp" (Expiration Time), and "iat" (Issued At)
	// claims. If the duration is zero or not provided, a default leeway of 60 seconds
	// will be used. If the duration is negative, no leeway will be used.
	ClockSkewLeeway time.Duration

	// Now provides the option to specify a func for determining what the current time is.
	// The func will be used to provide the current time when validating a JWT with respect to
	// the "nbf" (Not Before), "exp" (Expiration Time), and "iat" (Issued At) claims. If not
	// provided, defaults to returning time.Now().
	Now func() time.Time
}

// Validate validates JWTs of the JWS compact serialization form.
//
// The given JWT is considered valid if:
//  1. Its signature is successfully verified.
//  2. Its claims set and header parameter values match what's given by Expected.
//  3. It's valid with respect to the current time. This means that the current
//     time must be within the times (inclusive) given by the "nbf" (Not Before)
//     and "exp" (Expiration Time) claims and after the time given by the "iat"
//     (Issued At) claim, with configurable leeway. See Expected.Now() for details
//     on how the current time is provided for validation.
//
// A KeySet that can't fetch its keys results in ErrKeySetUnavailable.
func (v *Validator) Validate(ctx context.Context, token string, expected Expected) (map[string]interface{}, error) {
	const op = "Validator.Validate"
	// First, verify the signature to ensure subsequent validation is against verified claims
	allClaims, err := v.verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Validate the signing algorithm in the JWS header
	if err := validateSigningAlgorithm(token, expected.SigningAlgorithms); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Unmarshal all claims into the set of public JWT registered claims
	claims := jwt.Claims{}
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed jwt: %v: %w", op, err, ErrInvalidSignature)
	}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode registered claims: %v: %w", op, err, ErrInvalidClaims)
	}

	// At least one of the "nbf" (Not Before), "exp" (Expiration Time), or "iat" (Issued At)
	// claims are required to be set.
	if claims.IssuedAt == nil && claims.Expiry == nil && claims.NotBefore == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingTimeClaims)
	}

	// If "exp" (Expiration Time) is not set, then set it to the latest of
	// either the "iat" (Issued At) or "nbf" (Not Before) claims plus leeway.
	if claims.Expiry == nil {
		latestStart := claims.IssuedAt
		if claims.NotBefore != nil && (latestStart == nil || claims.NotBefore.Time().After(latestStart.Time())) {
			latestStart = claims.NotBefore
		}
		claims.Expiry = jwt.NewNumericDate(latestStart.Time().Add(leeway(expected.ExpirationLeeway, DefaultLeeway)))
	}

	// If "nbf" (Not Before) is not set, then set it to the "iat" (Issued At) if set.
	// Otherwise, set it to the "exp" (Expiration Time) minus leeway.
	if claims.NotBefore == nil {
		if claims.IssuedAt != nil {
			claims.NotBefore = claims.IssuedAt
		} else {
			claims.NotBefore = jwt.NewNumericDate(claims.Expiry.Time().Add(-leeway(expected.NotBeforeLeeway, DefaultLeeway)))
		}
	}

	now := time.Now
	if expected.Now != nil {
		now = expected.Now
	}
	audiences := expected.Audiences
	if v.normalizeAudiences {
		audiences = normalizeAudiences(audiences)
	}
	if err := validateClaims(claims, expected, audiences, now(), leeway(expected.ClockSkewLeeway, jwt.DefaultLeeway)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return allClaims, nil
}

// verify tries each KeySet in order.  ErrKeySetUnavailable is only returned
// when no KeySet verified the signature and at least one couldn't fetch its
// keys.
func (v *Validator) verify(ctx context.Context, token string) (map[string]interface{}, error) {
	var unavailable, lastErr error
	for _, ks := range v.keySets {
		claims, err := ks.VerifySignature(ctx, token)
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, ErrKeySetUnavailable) {
			unavailable = err
		}
		lastErr = err
	}
	if unavailable != nil {
		return nil, unavailable
	}
	return nil, lastErr
}

func validateClaims(c jwt.Claims, expected Expected, audiences []string, now time.Time, skew time.Duration) error {
	switch {
	case expected.Issuer != "" && c.Issuer != expected.Issuer:
		return fmt.Errorf("invalid issuer (iss) claim %q: %w", c.Issuer, ErrInvalidClaims)
	case expected.Subject != "" && c.Subject != expected.Subject:
		return fmt.Errorf("invalid subject (sub) claim %q: %w", c.Subject, ErrInvalidClaims)
	case expected.ID != "" && c.ID != expected.ID:
		return fmt.Errorf("invalid ID (jti) claim %q: %w", c.ID, ErrInvalidClaims)
	}
	if len(audiences) > 0 && !containsAny(c.Audience, audiences) {
		return fmt.Errorf("invalid audience (aud) claim %q: %w", []string(c.Audience), ErrInvalidClaims)
	}
	if c.NotBefore != nil && now.Add(skew).Before(c.NotBefore.Time()) {
		return fmt.Errorf("not valid before %s: %w", c.NotBefore.Time(), ErrTokenNotYetValid)
	}
	if c.Expiry != nil && now.Add(-skew).After(c.Expiry.Time()) {
		return fmt.Errorf("expired at %s: %w", c.Expiry.Time(), ErrExpiredToken)
	}
	if c.IssuedAt != nil && now.Add(skew).Before(c.IssuedAt.Time()) {
		return fmt.Errorf("issued in the future at %s: %w", c.IssuedAt.Time(), ErrTokenNotYetValid)
	}
	return nil
}

// validateSigningAlgorithm checks the "alg" header of the token against the
// expected algorithms, RS256 when none are given.
func validateSigningAlgorithm(token string, expectedAlgorithms []Alg) error {
	if len(expectedAlgorithms) == 0 {
		expectedAlgorithms = []Alg{RS256}
	}
	if err := SupportedSigningAlgorithm(expectedAlgorithms...); err != nil {
		return err
	}
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("malformed jwt: %v: %w", err, ErrInvalidSignature)
	}
	if len(jws.Signatures) != 1 {
		return fmt.Errorf("expected exactly one signature: %w", ErrInvalidSignature)
	}
	actual := Alg(jws.Signatures[0].Header.Algorithm)
	for _, a := range expectedAlgorithms {
		if a == actual {
			return nil
		}
	}
	return fmt.Errorf("token signed with %q: %w", actual, ErrUnsupportedAlg)
}

// leeway returns d for positive durations, zero for negative durations and
// the default otherwise.
func leeway(d, defaultLeeway time.Duration) time.Duration {
	switch {
	case d > 0:
		return d
	case d < 0:
		return 0
	default:
		return defaultLeeway
	}
}

func containsAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// normalizeAudiences removes a trailing slash from each audience.
func normalizeAudiences(audiences []string) []string {
	normalized := make([]string, 0, len(audiences))
	for _, a := range audiences {
		normalized = append(normalized, strings.TrimSuffix(a, "/"))
	}
	return normalized
}
