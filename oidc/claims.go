// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Claims are the verified identity claims of an id_token.  Raw carries every
// claim the provider sent, including the ones mapped to fields.
type Claims struct {
	Issuer            string                 `json:"issuer"`
	Subject           string                 `json:"subject"`
	Audience          []string               `json:"audience"`
	Expiry            time.Time              `json:"expiry"`
	IssuedAt          time.Time              `json:"issued_at"`
	Nonce             string                 `json:"nonce,omitempty"`
	AuthorizedParty   string                 `json:"azp,omitempty"`
	Email             string                 `json:"email,omitempty"`
	EmailVerified     bool                   `json:"email_verified,omitempty"`
	PreferredUsername string                 `json:"preferred_username,omitempty"`
	Name              string                 `json:"name,omitempty"`
	Raw               map[string]interface{} `json:"raw,omitempty"`
}

// Username returns the preferred_username claim, falling back to the subject.
func (c *Claims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// Copy returns a deep copy of the claims.
func (c *Claims) Copy() *Claims {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Audience = append([]string(nil), c.Audience...)
	if c.Raw != nil {
		cp.Raw = make(map[string]interface{}, len(c.Raw))
		for k, v := range c.Raw {
			cp.Raw[k] = v
		}
	}
	return &cp
}

// newClaims maps a signature verified id_token to Claims.
func newClaims(idt *oidc.IDToken) (*Claims, error) {
	const op = "newClaims"
	raw := map[string]interface{}{}
	if err := idt.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %v: %w", op, err, ErrInvalidToken)
	}
	c := &Claims{
		Issuer:   idt.Issuer,
		Subject:  idt.Subject,
		Audience: idt.Audience,
		Expiry:   idt.Expiry,
		IssuedAt: idt.IssuedAt,
		Nonce:    idt.Nonce,
		Raw:      raw,
	}
	c.AuthorizedParty = stringClaim(raw, "azp")
	c.Email = stringClaim(raw, "email")
	c.PreferredUsername = stringClaim(raw, "preferred_username")
	c.Name = stringClaim(raw, "name")
	switch v := raw["email_verified"].(type) {
	case bool:
		c.EmailVerified = v
	case string:
		c.EmailVerified = v == "true"
	}
	return c, nil
}

func stringClaim(raw map[string]interface{}, name string) string {
	if v, ok := raw[name].(string); ok {
		return v
	}
	return ""
}
