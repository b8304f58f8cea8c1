// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/oidc-webapp/oidc/internal/strutils"
)

// wellKnownPath is appended to the issuer to find the discovery document.
const wellKnownPath = "/.well-known/openid-configuration"

// maxDiscoveryBytes caps the size of a discovery document.
const maxDiscoveryBytes = 1 << 20

// ProviderMetadata is the part of the provider's discovery document used by
// the client, after endpoint rewriting.
type ProviderMetadata struct {
	Issuer               string   `json:"issuer"`
	AuthURL              string   `json:"authorization_endpoint"`
	TokenURL             string   `json:"token_endpoint"`
	UserInfoURL          string   `json:"userinfo_endpoint,omitempty"`
	JWKSURL              string   `json:"jwks_uri"`
	EndSessionURL        string   `json:"end_session_endpoint,omitempty"`
	Algorithms           []string `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethods []string `json:"code_challenge_methods_supported,omitempty"`
}

// discover fetches the provider's discovery document from the internal base
// and rewrites endpoints so server to server calls use the internal base and
// browser facing endpoints use the public issuer.
func discover(ctx context.Context, client *http.Client, c *Config) (*ProviderMetadata, error) {
	const op = "oidc.discover"
	wellKnown := c.internalBase() + wellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %v: %w", op, err, ErrDiscoveryFailed)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		// transport errors are returned unwrapped so the caller can classify
		// them as transient.
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s returned %s: %w", op, wellKnown, resp.Status, ErrDiscoveryFailed)
	}
	var md ProviderMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("%s: unable to decode discovery document: %v: %w", op, err, ErrDiscoveryFailed)
	}
	if md.Issuer != c.Issuer {
		return nil, fmt.Errorf("%s: discovered issuer %q does not match configured issuer %q: %w", op, md.Issuer, c.Issuer, ErrInvalidIssuer)
	}
	switch {
	case md.AuthURL == "":
		return nil, fmt.Errorf("%s: authorization_endpoint is missing: %w", op, ErrDiscoveryFailed)
	case md.TokenURL == "":
		return nil, fmt.Errorf("%s: token_endpoint is missing: %w", op, ErrDiscoveryFailed)
	case md.JWKSURL == "":
		return nil, fmt.Errorf("%s: jwks_uri is missing: %w", op, ErrDiscoveryFailed)
	}
	if len(md.CodeChallengeMethods) > 0 && !strutils.StrListContains(md.CodeChallengeMethods, string(S256)) {
		c.logger().Warn("provider does not advertise S256 PKCE support", "methods", md.CodeChallengeMethods)
	}

	public := strings.TrimSuffix(c.Issuer, "/")
	internal := c.internalBase()
	md.TokenURL = rebase(md.TokenURL, public, internal)
	md.UserInfoURL = rebase(md.UserInfoURL, public, internal)
	md.JWKSURL = rebase(md.JWKSURL, public, internal)
	md.AuthURL = rebase(md.AuthURL, internal, public)
	md.EndSessionURL = rebase(md.EndSessionURL, internal, public)
	return &md, nil
}

// rebase replaces the from prefix of u with to.  URLs outside of from are
// returned unchanged.
func rebase(u, from, to string) string {
	if u == "" || from == to {
		return u
	}
	if u == from || strings.HasPrefix(u, from+"/") {
		return to + strings.TrimPrefix(u, from)
	}
	return u
}

// Copy returns a copy of the metadata.
func (m *ProviderMetadata) Copy() *ProviderMetadata {
	cp := *m
	cp.Algorithms = append([]string(nil), m.Algorithms...)
	cp.CodeChallengeMethods = append([]string(nil), m.CodeChallengeMethods...)
	return &cp
}
