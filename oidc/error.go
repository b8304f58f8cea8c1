// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrInvalidCodeVerifier        = errors.New("invalid PKCE code verifier")
	ErrDiscoveryFailed            = errors.New("provider discovery failed")
	ErrUnsupportedEndpoint        = errors.New("endpoint not supported by provider")

	// ErrInvalidOrExpiredState is returned for a callback whose state is
	// unknown, already consumed or expired.  The three cases are
	// intentionally indistinguishable.
	ErrInvalidOrExpiredState = errors.New("invalid or expired state")

	// ErrProviderDeniedAuthorization is returned when the provider redirects
	// back with an error response (user cancelled, access denied, etc).
	ErrProviderDeniedAuthorization = errors.New("provider denied authorization")

	// ErrTokenExchangeFailed is returned when the token endpoint answers with a
	// non-success status or a malformed body.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrInvalidToken is returned when an id_token fails validation. It is
	// always joined with one of the more specific reasons below.
	ErrInvalidToken           = errors.New("invalid token")
	ErrMissingIDToken         = errors.New("id_token is missing")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidIssuer          = errors.New("invalid issuer")
	ErrInvalidAudience        = errors.New("invalid audience")
	ErrInvalidAuthorizedParty = errors.New("invalid authorized party")
	ErrExpiredToken           = errors.New("token is expired")
	ErrInvalidIssuedAt        = errors.New("invalid issued at (iat)")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrInvalidAccessTokenHash = errors.New("invalid access token hash (at_hash)")
	ErrSubjectMismatch        = errors.New("subject does not match")

	// ErrTokenRejectedByProvider is returned when the provider refuses a token
	// it previously issued (userinfo 401, refresh invalid_grant).  Callers
	// should treat the session as no longer valid.
	ErrTokenRejectedByProvider = errors.New("token rejected by provider")

	// ErrProviderUnreachable is returned when a provider call fails because of
	// the network or a deadline, after the bounded retry.
	ErrProviderUnreachable = errors.New("provider unreachable")

	ErrUserInfoFailed = errors.New("user info failed")
)
