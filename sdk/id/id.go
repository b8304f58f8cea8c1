// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package id generates random identifiers used for login attempt state, nonces,
// PKCE verifiers and session ids.
package id

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/hashicorp/go-uuid"
	"github.com/segmentio/ksuid"
)

// DefaultEntropy is the number of random bytes in an ID returned by New.
const DefaultEntropy = 32

var ErrInvalidEntropy = errors.New("invalid entropy")

// New generates a ID with an optional prefix. The ID is DefaultEntropy random
// bytes, base64url encoded without padding.
func New(optionalPrefix string) (string, error) {
	return NewWithEntropy(DefaultEntropy, optionalPrefix)
}

// NewWithEntropy generates an ID from n random bytes with an optional prefix.
func NewWithEntropy(n int, optionalPrefix string) (string, error) {
	const op = "id.NewWithEntropy"
	if n < 16 {
		return "", fmt.Errorf("%s: %d bytes is below the 128 bit minimum: %w", op, n, ErrInvalidEntropy)
	}
	b, err := uuid.GenerateRandomBytes(n)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, err)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}

// NewHandle returns a sortable, non-secret identifier.  Handles are safe to
// log and are used to correlate a session across log lines without exposing
// the session id itself.
func NewHandle(optionalPrefix string) string {
	h := ksuid.New().String()
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, h)
	}
	return h
}

// NewRequestID returns a random UUID for request correlation.
func NewRequestID() (string, error) {
	return uuid.GenerateUUID()
}
