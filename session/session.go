// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/oidc-webapp/oidc"
)

var (
	// ErrSessionNotFound is returned for an unknown session identifier.  It's
	// also returned, joined with ErrSessionExpired, for an expired session.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrSessionChanged is returned by Store.Update when the stored session
	// no longer has the expected version.
	ErrSessionChanged = errors.New("session changed")
)

// Session is the server side record of an authenticated user.
type Session struct {
	// ID is the secret identifier handed to the browser.  It's never logged.
	ID string

	// Handle is a non-secret identifier for correlating log lines.
	Handle string

	Subject  string
	Claims   *oidc.Claims
	UserInfo oidc.UserInfo
	Tokens   *oidc.TokenSet

	IssuedAt time.Time

	// ExpiresAt is when the session stops being valid.  It never exceeds
	// the expiry of the tokens the session holds, nor MaxExpiresAt.
	ExpiresAt time.Time

	// MaxExpiresAt bounds the session's lifetime across refreshes.
	MaxExpiresAt time.Time

	// Version is incremented on every refresh.  Stores use it to apply a
	// refresh only to the session it was computed from.
	Version uint64
}

// IsExpired reports whether the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Username returns the display name of the session's user.
func (s *Session) Username() string {
	if s.Claims != nil {
		return s.Claims.Username()
	}
	return s.Subject
}

// Email returns the email from the claims, falling back to userinfo.
func (s *Session) Email() string {
	if s.Claims != nil && s.Claims.Email != "" {
		return s.Claims.Email
	}
	if e, ok := s.UserInfo["email"].(string); ok {
		return e
	}
	return ""
}

// record is the stored form of a Session.  Tokens are plain strings here
// since the oidc token types redact themselves when marshaled.
type record struct {
	ID           string                 `json:"id"`
	Handle       string                 `json:"handle"`
	Subject      string                 `json:"subject"`
	Claims       *oidc.Claims           `json:"claims,omitempty"`
	UserInfo     map[string]interface{} `json:"userinfo,omitempty"`
	AccessToken  string                 `json:"access_token,omitempty"`
	IDToken      string                 `json:"id_token,omitempty"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	TokenType    string                 `json:"token_type,omitempty"`
	TokenExpiry  time.Time              `json:"token_expiry,omitempty"`
	IssuedAt     time.Time              `json:"issued_at"`
	ExpiresAt    time.Time              `json:"expires_at"`
	MaxExpiresAt time.Time              `json:"max_expires_at"`
	Version      uint64                 `json:"version"`
}

// Marshal encodes s for a Store.  The result contains the session's tokens
// in the clear and must be stored accordingly.
func Marshal(s *Session) ([]byte, error) {
	const op = "session.Marshal"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, oidc.ErrNilParameter)
	}
	r := record{
		ID:           s.ID,
		Handle:       s.Handle,
		Subject:      s.Subject,
		Claims:       s.Claims,
		UserInfo:     s.UserInfo,
		IssuedAt:     s.IssuedAt,
		ExpiresAt:    s.ExpiresAt,
		MaxExpiresAt: s.MaxExpiresAt,
		Version:      s.Version,
	}
	if s.Tokens != nil {
		r.AccessToken = string(s.Tokens.AccessToken)
		r.IDToken = string(s.Tokens.IDToken)
		r.RefreshToken = string(s.Tokens.RefreshToken)
		r.TokenType = s.Tokens.TokenType
		r.TokenExpiry = s.Tokens.Expiry
	}
	b, err := json.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Unmarshal decodes a session encoded by Marshal.
func Unmarshal(data []byte) (*Session, error) {
	const op = "session.Unmarshal"
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Session{
		ID:       r.ID,
		Handle:   r.Handle,
		Subject:  r.Subject,
		Claims:   r.Claims,
		UserInfo: r.UserInfo,
		Tokens: &oidc.TokenSet{
			AccessToken:  oidc.AccessToken(r.AccessToken),
			IDToken:      oidc.IDToken(r.IDToken),
			RefreshToken: oidc.RefreshToken(r.RefreshToken),
			TokenType:    r.TokenType,
			Expiry:       r.TokenExpiry,
		},
		IssuedAt:     r.IssuedAt,
		ExpiresAt:    r.ExpiresAt,
		MaxExpiresAt: r.MaxExpiresAt,
		Version:      r.Version,
	}, nil
}

// copySession returns a copy that shares no mutable state with s.
func copySession(s *Session) *Session {
	cp := *s
	cp.Claims = s.Claims.Copy()
	if s.UserInfo != nil {
		cp.UserInfo = make(oidc.UserInfo, len(s.UserInfo))
		for k, v := range s.UserInfo {
			cp.UserInfo[k] = v
		}
	}
	if s.Tokens != nil {
		t := *s.Tokens
		cp.Tokens = &t
	}
	return &cp
}
