// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"net/http"

	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

// logout destroys the local session and sends the browser to the provider's
// end-session endpoint, so the provider ends its session too.  The id_token
// is sent as a hint when the session still has one; an expired session is
// read without being renewed.  When the provider has no end-session endpoint
// the browser lands on the index.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	var hint oidc.IDToken
	if sessionID, err := h.cookies.Read(r); err == nil {
		s, err := h.sessions.Peek(ctx, sessionID)
		switch {
		case err == nil:
			if s.Tokens != nil {
				hint = s.Tokens.IDToken
			}
			logger.Info("logout", "session", s.Handle, "subject", s.Subject)
		case !errors.Is(err, session.ErrSessionNotFound):
			logger.Warn("unable to load session for logout", "error", err)
		}
		if err := h.sessions.Destroy(ctx, sessionID); err != nil {
			logger.Error("unable to destroy session", "error", err)
			h.fail(w, r, http.StatusInternalServerError, msgInternal)
			return
		}
	}
	h.cookies.Clear(w)
	target := "/"
	if u, ok := h.endSessionURL(r, hint); ok {
		target = u
	}
	status := http.StatusFound
	if r.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, target, status)
}

func (h *Handler) endSessionURL(r *http.Request, hint oidc.IDToken) (string, bool) {
	logger := h.requestLogger(r)
	u, err := h.provider.EndSessionURL(hint, "")
	switch {
	case errors.Is(err, oidc.ErrUnsupportedEndpoint):
		logger.Debug("provider has no end-session endpoint")
		return "", false
	case err != nil:
		logger.Warn("unable to build end-session url", "error", err)
		return "", false
	}
	if hint == "" {
		logger.Debug("federated logout without id_token hint")
	}
	return u, true
}
