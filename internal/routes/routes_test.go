package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimited(t *testing.T) {
	h := rateLimited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/detect", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < detectRequestsPerMinute; i++ {
		require.Equal(t, http.StatusOK, send("10.0.0.1:5000"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5000"))

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestDynamicHTMLHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>detect</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.html"), []byte("<h1>history</h1>"), 0644))
	h := dynamicHTMLHandler(dir)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "detect"},
		{"/history", http.StatusOK, "history"},
		{"/settings", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, tt.path)
		assert.Contains(t, rec.Body.String(), tt.body, tt.path)
	}
}
