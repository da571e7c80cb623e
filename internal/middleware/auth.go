package middleware

import (
	"net/http"
	"strings"
)

// AuthCookie holds the session token set by the login handler.
const AuthCookie = "authenticated"

// publicPaths are reachable without logging in.
var publicPaths = map[string]bool{
	"/login":      true,
	"/auth/login": true,
	"/health":     true,
}

// AuthMiddleware checks that the user is logged in (a valid session token in the auth cookie).
func AuthMiddleware(sessions *Sessions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(AuthCookie)
		if err != nil || sessions.Validate(cookie.Value) != nil {
			// API calls get 401, page loads get sent to the login form
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
