// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/oidc-webapp/middleware"
	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

type indexPage struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ProtectedAPI  bool   `json:"-"`
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	page := indexPage{ProtectedAPI: h.resourceURL != ""}
	s, err := h.auth.Session(w, r)
	switch {
	case err == nil:
		page.Authenticated = true
		page.Username = s.Username()
	case !errors.Is(err, session.ErrSessionNotFound):
		h.requestLogger(r).Error("unable to load session", "error", err)
	}
	h.respond(w, r, http.StatusOK, "index.html", page)
}

type profilePage struct {
	Subject   string                 `json:"subject"`
	Username  string                 `json:"username"`
	Email     string                 `json:"email,omitempty"`
	Claims    map[string]interface{} `json:"claims"`
	UserInfo  oidc.UserInfo          `json:"userinfo,omitempty"`
	ExpiresAt time.Time              `json:"expires_at"`
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFromContext(r.Context())
	page := profilePage{
		Subject:   s.Subject,
		Username:  s.Username(),
		Email:     s.Email(),
		UserInfo:  s.UserInfo,
		ExpiresAt: s.ExpiresAt,
	}
	if s.Claims != nil {
		page.Claims = s.Claims.Raw
	}
	h.respond(w, r, http.StatusOK, "profile.html", page)
}

type tokenPage struct {
	TokenType         string                 `json:"token_type,omitempty"`
	ExpiresAt         time.Time              `json:"expires_at"`
	ExpiresIn         int64                  `json:"expires_in"`
	HasRefreshToken   bool                   `json:"has_refresh_token"`
	AccessTokenOpaque bool                   `json:"access_token_opaque,omitempty"`
	AccessTokenClaims map[string]interface{} `json:"access_token_claims,omitempty"`
	IDTokenClaims     map[string]interface{} `json:"id_token_claims,omitempty"`
}

// token shows the session's tokens decoded.  Nothing here is used for an
// authorization decision.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	s, _ := middleware.SessionFromContext(r.Context())
	if s.Tokens == nil || s.Tokens.AccessToken == "" {
		h.fail(w, r, http.StatusNotFound, "No access token is available for this session.")
		return
	}
	page := tokenPage{
		TokenType:       s.Tokens.TokenType,
		ExpiresAt:       s.ExpiresAt,
		HasRefreshToken: s.Tokens.RefreshToken != "",
	}
	if !s.Tokens.Expiry.IsZero() {
		page.ExpiresAt = s.Tokens.Expiry
	}
	if in := time.Until(page.ExpiresAt); in > 0 {
		page.ExpiresIn = int64(in.Seconds())
	}
	if err := s.Tokens.AccessToken.Claims(&page.AccessTokenClaims); err != nil {
		logger.Debug("access_token is not a jwt", "session", s.Handle, "error", err)
		page.AccessTokenOpaque = true
	}
	if s.Claims != nil {
		page.IDTokenClaims = s.Claims.Raw
	}
	h.respond(w, r, http.StatusOK, "token.html", page)
}
