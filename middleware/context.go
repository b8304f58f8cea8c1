// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package middleware gates protected handlers behind a session and logs
// requests.
package middleware

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oidc-webapp/session"
)

type contextKey int

const (
	sessionKey contextKey = iota
	requestIDKey
	loggerKey
)

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the authenticated session RequireSession put in
// the request context.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// RequestIDFromContext returns the id Logging assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LoggerFromContext returns the request scoped logger Logging put in the
// context, or fallback when there's none.
func LoggerFromContext(ctx context.Context, fallback hclog.Logger) hclog.Logger {
	if l, ok := ctx.Value(loggerKey).(hclog.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return hclog.NewNullLogger()
	}
	return fallback
}
