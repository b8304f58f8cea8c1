// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/hashicorp/oidc-webapp/middleware"
)

const (
	msgAuthFailed          = "Authentication failed, please try again."
	msgProviderUnavailable = "The identity provider is unavailable, please try again later."
	msgInternal            = "Something went wrong, please try again later."
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	tmpl *template.Template
}

func loadPages() (*pages, error) {
	const op = "handler.loadPages"
	tmpl, err := template.New("").Funcs(template.FuncMap{"json": prettyJSON}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse templates: %w", op, err)
	}
	return &pages{tmpl: tmpl}, nil
}

func (p *pages) render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// respond writes data as JSON for API clients and as the named page for
// browsers.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, page string, data interface{}) {
	if middleware.IsAPIRequest(r) {
		middleware.WriteJSON(w, status, data)
		return
	}
	if err := h.pages.render(w, status, page, data); err != nil {
		h.requestLogger(r).Error("unable to render page", "page", page, "error", err)
		http.Error(w, msgInternal, http.StatusInternalServerError)
	}
}

type errorPage struct {
	Status  int
	Title   string
	Message string
}

// fail writes a user facing error.  message must not carry internal detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if middleware.IsAPIRequest(r) {
		middleware.WriteJSONError(w, status, message)
		return
	}
	page := errorPage{Status: status, Title: http.StatusText(status), Message: message}
	if err := h.pages.render(w, status, "error.html", page); err != nil {
		h.requestLogger(r).Error("unable to render error page", "error", err)
		http.Error(w, message, status)
	}
}

func prettyJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
