// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"

	"gopkg.in/square/go-jose.v2/jwt"
)

// IDToken is an oidc id_token.
// See https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims without verifying the signature.  Use
// Provider.VerifyIDToken before trusting any of them.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if err := UnmarshalClaims(string(t), claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying the signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	tok, err := jwt.ParseSigned(rawToken)
	if err != nil {
		return fmt.Errorf("%s: malformed jwt: %v: %w", op, err, ErrInvalidParameter)
	}
	if err := tok.UnsafeClaimsWithoutVerification(claims); err != nil {
		return fmt.Errorf("%s: unable to decode claims: %v: %w", op, err, ErrInvalidParameter)
	}
	return nil
}
