// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/jwt"
	"github.com/hashicorp/oidc-webapp/middleware"
	"github.com/hashicorp/oidc-webapp/oidc"
)

// Server serves the protected resource.
type Server struct {
	validator *jwt.Validator
	expected  jwt.Expected
	logger    hclog.Logger
}

// Message is the body of every error response.
type Message struct {
	Message string `json:"message"`
}

// Protected is the body of a successful /protected-resource response.
type Protected struct {
	Message             string                 `json:"message"`
	ReceivedTokenLength int                    `json:"received_token_length"`
	AccessedByUserID    string                 `json:"accessed_by_user_id"`
	PreferredUsername   string                 `json:"preferred_username"`
	TokenClaims         map[string]interface{} `json:"token_claims"`
}

// Health is the body of a /health response.
type Health struct {
	Status string `json:"status"`
}

// NewServer returns a Server that accepts tokens v validates against
// expected.  Supported options: WithLogger
func NewServer(v *jwt.Validator, expected jwt.Expected, opt ...Option) (*Server, error) {
	const op = "resource.NewServer"
	if v == nil {
		return nil, fmt.Errorf("%s: validator is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getServerOpts(opt...)
	return &Server{
		validator: v,
		expected:  expected,
		logger:    opts.withLogger,
	}, nil
}

// Routes returns the resource server's routes wrapped in request logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /protected-resource", s.protectedResource)
	mux.HandleFunc("GET /health", s.health)
	return middleware.Logging(s.logger)(mux)
}

func (s *Server) protectedResource(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), s.logger)
	token, msg := bearerToken(r)
	if token == "" {
		unauthorized(w, msg)
		return
	}
	claims, err := s.validator.Validate(r.Context(), token, s.expected)
	switch {
	case errors.Is(err, jwt.ErrKeySetUnavailable):
		logger.Error("unable to validate token", "error", err)
		middleware.WriteJSON(w, http.StatusInternalServerError, Message{Message: "Server error: could not fetch the identity provider's signing keys."})
		return
	case err != nil:
		logger.Info("rejected token", "error", err)
		unauthorized(w, "Unauthorized: token validation failed.")
		return
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub = "unknown"
	}
	username, _ := claims["preferred_username"].(string)
	if username == "" {
		username = "unknown"
	}
	logger.Debug("access granted", "subject", sub)
	middleware.WriteJSON(w, http.StatusOK, Protected{
		Message:             "This is highly confidential data from the protected resource!",
		ReceivedTokenLength: len(token),
		AccessedByUserID:    sub,
		PreferredUsername:   username,
		TokenClaims:         claims,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, Health{Status: "Resource Server is healthy"})
}

// bearerToken returns the request's bearer token, or why there is none.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Authorization header missing."
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "Invalid Authorization header format. Expected 'Bearer <token>'."
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	middleware.WriteJSON(w, http.StatusUnauthorized, Message{Message: msg})
}
