// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// Claims retrieves the AccessToken claims when the token is a JWT.  The
// signature is not verified, so the result is only suitable for display.
func (t AccessToken) Claims(claims interface{}) error {
	const op = "AccessToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if err := UnmarshalClaims(string(t), claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
