// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"

	"github.com/hashicorp/oidc-webapp/oidc"
)

// MinHashKeyLength is the minimum length of the key that signs the cookie.
const MinHashKeyLength = 32

// Cookies carries the session identifier to and from the browser in an
// HttpOnly cookie.  The value is signed, and encrypted when a block key is
// provided, so a tampered or forged cookie is rejected before any store
// lookup.
type Cookies struct {
	name     string
	path     string
	secure   bool
	sameSite http.SameSite
	codec    *securecookie.SecureCookie
}

// NewCookies returns Cookies using the cookie name and the key that signs the
// value.  Supported options: WithSecure, WithPath, WithSameSite,
// WithBlockKey, WithMaxLifetime
func NewCookies(name string, hashKey []byte, opt ...Option) (*Cookies, error) {
	const op = "session.NewCookies"
	if name == "" {
		return nil, fmt.Errorf("%s: cookie name is empty: %w", op, oidc.ErrInvalidParameter)
	}
	if len(hashKey) < MinHashKeyLength {
		return nil, fmt.Errorf("%s: hash key must be at least %d bytes: %w", op, MinHashKeyLength, oidc.ErrInvalidParameter)
	}
	opts := getCookieOpts(opt...)
	switch len(opts.withBlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: block key must be 16, 24 or 32 bytes: %w", op, oidc.ErrInvalidParameter)
	}
	blockKey := opts.withBlockKey
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey).MaxAge(int(opts.withMaxLifetime.Seconds()))
	return &Cookies{
		name:     name,
		path:     opts.withPath,
		secure:   opts.withSecure,
		sameSite: opts.withSameSite,
		codec:    codec,
	}, nil
}

// Name returns the cookie name.
func (c *Cookies) Name() string { return c.name }

// Write sets the session cookie for s.  The cookie lives as long as the
// session may, refreshes included.
func (c *Cookies) Write(w http.ResponseWriter, s *Session) error {
	const op = "Cookies.Write"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	value, err := c.codec.Encode(c.name, s.ID)
	if err != nil {
		return fmt.Errorf("%s: unable to encode cookie: %w", op, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     c.path,
		Expires:  s.MaxExpiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
	return nil
}

// Read returns the session identifier carried by the request.  A missing or
// invalid cookie results in ErrSessionNotFound.
func (c *Cookies) Read(r *http.Request) (string, error) {
	const op = "Cookies.Read"
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	var sessionID string
	if err := c.codec.Decode(c.name, cookie.Value, &sessionID); err != nil {
		return "", fmt.Errorf("%s: invalid cookie: %v: %w", op, err, ErrSessionNotFound)
	}
	if sessionID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	return sessionID, nil
}

// Clear expires the session cookie.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     c.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
}

// GenerateHashKey returns a random key suitable for NewCookies.  Cookies
// signed with a generated key don't survive a restart.
func GenerateHashKey() []byte {
	return securecookie.GenerateRandomKey(64)
}
