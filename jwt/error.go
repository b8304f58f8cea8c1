// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrKeySetUnavailable = errors.New("unable to fetch signing keys")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrUnsupportedAlg    = errors.New("unsupported signing algorithm")
	ErrInvalidClaims     = errors.New("invalid claims")
	ErrExpiredToken      = errors.New("token is expired")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrMissingTimeClaims = errors.New("no exp, iat or nbf claims found in token")
)
