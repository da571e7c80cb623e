package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

var testSessions = mustSessions("test-secret")

func mustSessions(secret string) *Sessions {
	s, err := NewSessions(secret)
	if err != nil {
		panic(err)
	}
	return s
}

func serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	AuthMiddleware(testSessions, okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_PublicPaths(t *testing.T) {
	for _, path := range []string{"/login", "/auth/login", "/health", "/static/app.js"} {
		rec := serve(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthMiddleware_RedirectsPages(t *testing.T) {
	rec := serve(httptest.NewRequest(http.MethodGet, "/history", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestAuthMiddleware_RejectsAPI(t *testing.T) {
	rec := serve(httptest.NewRequest(http.MethodPost, "/api/detect", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.Equal(t, http.StatusUnauthorized, serve(req).Code)
}

func TestAuthMiddleware_AcceptsIssuedSession(t *testing.T) {
	token, err := testSessions.Issue()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: token})
	assert.Equal(t, http.StatusOK, serve(req).Code)
}

func TestAuthMiddleware_RejectsForgedCookies(t *testing.T) {
	foreign, err := mustSessions("other-secret").Issue()
	require.NoError(t, err)

	for _, value := range []string{"true", "yes", foreign} {
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: value})
		assert.Equal(t, http.StatusUnauthorized, serve(req).Code, value)
	}
}

func TestSessions_Expired(t *testing.T) {
	s := mustSessions("test-secret")
	s.ttl = -time.Minute

	token, err := s.Issue()
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Validate(token), ErrInvalidSession))
}

func TestNewSessions_RandomSecret(t *testing.T) {
	a := mustSessions("")
	b := mustSessions("")

	token, err := a.Issue()
	require.NoError(t, err)
	assert.NoError(t, a.Validate(token))
	assert.Error(t, b.Validate(token))
}
