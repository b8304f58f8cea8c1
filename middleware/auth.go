// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

// Auth gates handlers behind an authenticated session.
type Auth struct {
	sessions  *session.Manager
	cookies   *session.Cookies
	loginPath string
	logger    hclog.Logger
}

// NewAuth returns an Auth using sessions and cookies.  Supported options:
// WithLoginPath, WithLogger
func NewAuth(sessions *session.Manager, cookies *session.Cookies, opt ...Option) (*Auth, error) {
	const op = "middleware.NewAuth"
	switch {
	case sessions == nil:
		return nil, fmt.Errorf("%s: session manager is nil: %w", op, oidc.ErrNilParameter)
	case cookies == nil:
		return nil, fmt.Errorf("%s: cookies are nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getAuthOpts(opt...)
	return &Auth{
		sessions:  sessions,
		cookies:   cookies,
		loginPath: opts.withLoginPath,
		logger:    opts.withLogger,
	}, nil
}

// Session returns the request's session.  A request without a valid session
// results in session.ErrSessionNotFound; any other error means the session
// store failed.  A stale cookie is cleared from w.
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	const op = "Auth.Session"
	id, err := a.cookies.Read(r)
	if err != nil {
		if _, cerr := r.Cookie(a.cookies.Name()); cerr == nil {
			a.cookies.Clear(w)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s, err := a.sessions.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			a.cookies.Clear(w)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// RequireSession only lets requests with a valid session through to next,
// with the session in the request context.  Browsers without one are
// redirected to the login path, which returns them to the requested path
// after login.  API clients get a 401 JSON body instead.
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context(), a.logger)
		s, err := a.Session(w, r)
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			logger.Debug("unauthenticated request", "path", r.URL.Path, "expired", errors.Is(err, session.ErrSessionExpired))
			a.unauthenticated(w, r)
			return
		case err != nil:
			logger.Error("unable to load session", "error", err)
			WriteJSONError(w, http.StatusInternalServerError, "unable to load session")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (a *Auth) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if IsAPIRequest(r) {
		WriteJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	http.Redirect(w, r, a.LoginURL(r.URL.RequestURI()), http.StatusFound)
}

// LoginURL returns the login path with returnTo as its return_to parameter.
func (a *Auth) LoginURL(returnTo string) string {
	if returnTo == "" || returnTo == "/" {
		return a.loginPath
	}
	return a.loginPath + "?" + url.Values{"return_to": {returnTo}}.Encode()
}

// IsAPIRequest reports whether the request comes from a script rather than a
// browser navigation: an XMLHttpRequest, or an Accept header asking for JSON
// and not HTML.
func IsAPIRequest(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	var wantsJSON, wantsHTML bool
	for _, accept := range r.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			switch {
			case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
				wantsJSON = true
			case mediaType == "text/html":
				wantsHTML = true
			}
		}
	}
	return wantsJSON && !wantsHTML
}

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSONError writes an ErrorResponse with status.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Message: message,
	})
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
