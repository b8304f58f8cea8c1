// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/oidc-webapp/middleware"
)

// ProtectedResourcePath is the resource server's protected route.
const ProtectedResourcePath = "/protected-resource"

const maxResourceResponseBytes = 1 << 20

// callProtectedAPI calls the resource server with the session's access_token
// and relays the JSON it returns.
func (h *Handler) callProtectedAPI(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	s, _ := middleware.SessionFromContext(r.Context())
	if s.Tokens == nil || s.Tokens.AccessToken == "" {
		h.fail(w, r, http.StatusUnauthorized, "No access token is available for this session, please log in again.")
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.resourceURL+ProtectedResourcePath, nil)
	if err != nil {
		logger.Error("unable to create resource server request", "error", err)
		h.fail(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	req.Header.Set("Authorization", "Bearer "+string(s.Tokens.AccessToken))
	req.Header.Set("Accept", "application/json")
	if requestID := middleware.RequestIDFromContext(r.Context()); requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Error("unable to call resource server", "error", err)
		h.fail(w, r, http.StatusBadGateway, "The protected API is unavailable, please try again later.")
		return
	}
	defer resp.Body.Close()

	var body interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResourceResponseBytes)).Decode(&body); err != nil {
		logger.Error("unable to decode resource server response", "status", resp.StatusCode, "error", err)
		h.fail(w, r, http.StatusBadGateway, "The protected API returned an invalid response.")
		return
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("resource server refused the request", "status", resp.StatusCode, "response", body)
		h.fail(w, r, http.StatusBadGateway, fmt.Sprintf("The protected API returned %s.", resp.Status))
		return
	}
	h.respond(w, r, http.StatusOK, "api_response.html", body)
}
