// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/attempt"
	"github.com/hashicorp/oidc-webapp/middleware"
	"github.com/hashicorp/oidc-webapp/oidc"
	sdkhttp "github.com/hashicorp/oidc-webapp/sdk/http"
	"github.com/hashicorp/oidc-webapp/session"
)

// DefaultResourceTimeout bounds a call to the resource server.
const DefaultResourceTimeout = 10 * time.Second

// Provider is the part of *oidc.Provider the handlers use.
type Provider interface {
	AuthURL(ctx context.Context, a *oidc.Attempt) (string, error)
	Exchange(ctx context.Context, a *oidc.Attempt, state, code string) (*oidc.TokenSet, *oidc.Claims, error)
	UserInfo(ctx context.Context, t oidc.AccessToken, subject string) (oidc.UserInfo, error)
	EndSessionURL(idTokenHint oidc.IDToken, postLogoutRedirect string) (string, error)
}

// Handler serves the web application's routes.
type Handler struct {
	provider      Provider
	attempts      *attempt.Manager
	sessions      *session.Manager
	cookies       *session.Cookies
	auth          *middleware.Auth
	pages         *pages
	fetchUserInfo bool
	resourceURL   string
	client        *http.Client
	logger        hclog.Logger
}

// NewHandler returns a Handler.  Supported options: WithLogger,
// WithFetchUserInfo, WithResourceServerURL, WithHTTPClient
func NewHandler(p Provider, attempts *attempt.Manager, sessions *session.Manager, cookies *session.Cookies, opt ...Option) (*Handler, error) {
	const op = "handler.NewHandler"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrNilParameter)
	case attempts == nil:
		return nil, fmt.Errorf("%s: attempt manager is nil: %w", op, oidc.ErrNilParameter)
	case sessions == nil:
		return nil, fmt.Errorf("%s: session manager is nil: %w", op, oidc.ErrNilParameter)
	case cookies == nil:
		return nil, fmt.Errorf("%s: cookies are nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getHandlerOpts(opt...)
	auth, err := middleware.NewAuth(sessions, cookies, middleware.WithLogger(opts.withLogger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pg, err := loadPages()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h := &Handler{
		provider:      p,
		attempts:      attempts,
		sessions:      sessions,
		cookies:       cookies,
		auth:          auth,
		pages:         pg,
		fetchUserInfo: opts.withFetchUserInfo,
		resourceURL:   strings.TrimSuffix(opts.withResourceServerURL, "/"),
		client:        opts.withHTTPClient,
		logger:        opts.withLogger,
	}
	if h.resourceURL != "" && h.client == nil {
		if h.client, err = sdkhttp.NewClient("", DefaultResourceTimeout); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return h, nil
}

// Routes returns the application's routes wrapped in request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("GET /login", h.login)
	mux.HandleFunc("GET /callback", h.callback)
	mux.Handle("GET /profile", h.auth.RequireSession(http.HandlerFunc(h.profile)))
	mux.Handle("GET /token", h.auth.RequireSession(http.HandlerFunc(h.token)))
	mux.HandleFunc("GET /logout", h.logout)
	mux.HandleFunc("POST /logout", h.logout)
	if h.resourceURL != "" {
		mux.Handle("GET /call-protected-api", h.auth.RequireSession(http.HandlerFunc(h.callProtectedAPI)))
	}
	return middleware.Logging(h.logger)(mux)
}

func (h *Handler) requestLogger(r *http.Request) hclog.Logger {
	return middleware.LoggerFromContext(r.Context(), h.logger)
}
