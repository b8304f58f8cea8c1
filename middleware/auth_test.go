// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-webapp/oidc"
	"github.com/hashicorp/oidc-webapp/session"
)

type testAuth struct {
	auth    *Auth
	manager *session.Manager
	cookies *session.Cookies
	now     time.Time
}

func newTestAuth(t *testing.T, store session.Store) *testAuth {
	t.Helper()
	ta := &testAuth{now: time.Now()}
	var err error
	ta.manager, err = session.NewManager(store, session.WithNow(func() time.Time { return ta.now }))
	require.NoError(t, err)
	ta.cookies, err = session.NewCookies("sid", session.GenerateHashKey())
	require.NoError(t, err)
	ta.auth, err = NewAuth(ta.manager, ta.cookies)
	require.NoError(t, err)
	return ta
}

// login creates a session and returns its cookie.
func (ta *testAuth) login(t *testing.T, expiresIn time.Duration) (*session.Session, *http.Cookie) {
	t.Helper()
	claims := &oidc.Claims{Subject: "manzolo", PreferredUsername: "manzolo", Expiry: ta.now.Add(expiresIn)}
	s, err := ta.manager.Create(context.Background(), claims, &oidc.TokenSet{AccessToken: "a", IDToken: "i"}, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, ta.cookies.Write(rec, s))
	return s, rec.Result().Cookies()[0]
}

func protected() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "no session", http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(s.Subject))
	})
}

func TestNewAuth(t *testing.T) {
	m, err := session.NewManager(session.NewMemoryStore())
	require.NoError(t, err)
	c, err := session.NewCookies("sid", session.GenerateHashKey())
	require.NoError(t, err)

	_, err = NewAuth(nil, c)
	assert.ErrorIs(t, err, oidc.ErrNilParameter)
	_, err = NewAuth(m, nil)
	assert.ErrorIs(t, err, oidc.ErrNilParameter)
	a, err := NewAuth(m, c, WithLoginPath("/auth/login"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login?return_to=%2Fprofile", a.LoginURL("/profile"))
	assert.Equal(t, "/auth/login", a.LoginURL("/"))
}

func TestAuth_RequireSession(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		assert := assert.New(t)
		ta := newTestAuth(t, session.NewMemoryStore())
		_, cookie := ta.login(t, time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(http.StatusOK, rec.Code)
		assert.Equal("manzolo", rec.Body.String())
	})
	t.Run("no-cookie-redirects", func(t *testing.T) {
		assert := assert.New(t)
		ta := newTestAuth(t, session.NewMemoryStore())

		req := httptest.NewRequest(http.MethodGet, "/token?x=1", nil)
		rec := httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(http.StatusFound, rec.Code)
		assert.Equal("/login?return_to=%2Ftoken%3Fx%3D1", rec.Header().Get("Location"))
		assert.Empty(rec.Result().Cookies())
	})
	t.Run("api-client-gets-401", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ta := newTestAuth(t, session.NewMemoryStore())

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(http.StatusUnauthorized, rec.Code)
		var body ErrorResponse
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal("unauthorized", body.Error)
	})
	t.Run("expired-session", func(t *testing.T) {
		assert := assert.New(t)
		store := session.NewMemoryStore()
		ta := newTestAuth(t, store)
		_, cookie := ta.login(t, time.Minute)
		ta.now = ta.now.Add(2 * time.Minute)

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(http.StatusFound, rec.Code)
		assert.Equal("/login?return_to=%2Fprofile", rec.Header().Get("Location"))
		assert.Equal(0, store.Len(), "the expired session is destroyed")
		cleared := rec.Result().Cookies()
		if assert.Len(cleared, 1) {
			assert.Equal(-1, cleared[0].MaxAge)
		}
	})
	t.Run("destroyed-session", func(t *testing.T) {
		ta := newTestAuth(t, session.NewMemoryStore())
		s, cookie := ta.login(t, time.Hour)
		require.NoError(t, ta.manager.Destroy(context.Background(), s.ID))

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
	})
	t.Run("store-failure", func(t *testing.T) {
		ta := newTestAuth(t, brokenStore{})
		s := session.TestSession(t, "alice", time.Hour)
		rec := httptest.NewRecorder()
		require.NoError(t, ta.cookies.Write(rec, s))

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.AddCookie(rec.Result().Cookies()[0])
		rec = httptest.NewRecorder()
		ta.auth.RequireSession(protected()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, *session.Session) error { return errors.New("down") }
func (brokenStore) Load(context.Context, string) (*session.Session, error) {
	return nil, errors.New("down")
}
func (brokenStore) Update(context.Context, *session.Session, uint64) error {
	return errors.New("down")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("down") }
func (brokenStore) DeleteVersion(context.Context, string, uint64) error {
	return errors.New("down")
}

func TestIsAPIRequest(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{name: "none", header: http.Header{}},
		{name: "browser", header: http.Header{"Accept": {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"}}},
		{name: "json", header: http.Header{"Accept": {"application/json"}}, want: true},
		{name: "problem-json", header: http.Header{"Accept": {"application/problem+json"}}, want: true},
		{name: "json-and-html", header: http.Header{"Accept": {"application/json, text/html"}}},
		{name: "xhr", header: http.Header{"X-Requested-With": {"XMLHttpRequest"}}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header = tt.header
			assert.Equal(t, tt.want, IsAPIRequest(req))
		})
	}
}
