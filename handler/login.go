// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/oidc-webapp/attempt"
	"github.com/hashicorp/oidc-webapp/oidc"
)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string
	Description string
	URI         string
}

func (e *AuthenErrorResponse) String() string {
	if e.Description == "" {
		return e.Error
	}
	return fmt.Sprintf("%s: %s", e.Error, e.Description)
}

// login creates a login attempt and redirects the browser to the provider's
// authorization endpoint.  An optional return_to names the local path to land
// on after the callback.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	a, err := h.attempts.Create(r.Context(), r.URL.Query().Get("return_to"))
	if err != nil {
		logger.Error("unable to create login attempt", "error", err)
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	authURL, err := h.provider.AuthURL(r.Context(), a)
	if err != nil {
		logger.Error("unable to build authorization url", "error", err)
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	logger.Debug("redirecting to provider", "return_to", a.ReturnTo)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback completes a login attempt.  Every failure path returns before a
// session is created.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")

	if errCode := q.Get("error"); errCode != "" {
		authErr := &AuthenErrorResponse{
			Error:       errCode,
			Description: q.Get("error_description"),
			URI:         q.Get("error_uri"),
		}
		// the attempt can't be completed anymore
		if state != "" {
			if _, err := h.attempts.Consume(ctx, state); err != nil && !errors.Is(err, oidc.ErrInvalidOrExpiredState) {
				logger.Warn("unable to discard login attempt", "error", err)
			}
		}
		logger.Info("login failed", "error", fmt.Errorf("%w: %s", oidc.ErrProviderDeniedAuthorization, authErr))
		h.fail(w, r, http.StatusUnauthorized, msgAuthFailed)
		return
	}
	if state == "" || code == "" {
		logger.Info("login failed", "error", "callback is missing state or code")
		h.fail(w, r, http.StatusBadRequest, msgAuthFailed)
		return
	}

	a, err := h.attempts.Consume(ctx, state)
	switch {
	case errors.Is(err, oidc.ErrInvalidOrExpiredState):
		logger.Info("login failed", "error", err)
		h.fail(w, r, http.StatusBadRequest, msgAuthFailed)
		return
	case err != nil:
		logger.Error("unable to read login attempt", "error", err)
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}

	tokens, claims, err := h.provider.Exchange(ctx, a, state, code)
	if err != nil {
		status, msg := exchangeFailure(err)
		logger.Warn("login failed", "error", err)
		h.fail(w, r, status, msg)
		return
	}

	var info oidc.UserInfo
	if h.fetchUserInfo {
		info, err = h.provider.UserInfo(ctx, tokens.AccessToken, claims.Subject)
		if err != nil {
			logger.Warn("unable to fetch userinfo, using id_token claims", "subject", claims.Subject, "error", err)
			info = nil
		}
	}

	s, err := h.sessions.Create(ctx, claims, tokens, info)
	switch {
	case errors.Is(err, oidc.ErrExpiredToken):
		logger.Warn("login failed", "error", err)
		h.fail(w, r, http.StatusUnauthorized, msgAuthFailed)
		return
	case err != nil:
		logger.Error("unable to create session", "error", err)
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	if err := h.cookies.Write(w, s); err != nil {
		logger.Error("unable to write session cookie", "session", s.Handle, "error", err)
		if err := h.sessions.Destroy(ctx, s.ID); err != nil {
			logger.Error("unable to destroy session", "session", s.Handle, "error", err)
		}
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	logger.Info("login succeeded", "session", s.Handle, "subject", s.Subject)
	http.Redirect(w, r, attempt.SafeReturnTo(a.ReturnTo), http.StatusFound)
}

// exchangeFailure maps a failed code exchange to a response.
func exchangeFailure(err error) (int, string) {
	switch {
	case errors.Is(err, oidc.ErrProviderUnreachable):
		return http.StatusServiceUnavailable, msgProviderUnavailable
	case errors.Is(err, oidc.ErrInvalidOrExpiredState):
		return http.StatusBadRequest, msgAuthFailed
	default:
		return http.StatusUnauthorized, msgAuthFailed
	}
}
