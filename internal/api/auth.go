package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || !tokenMatches(auth[len(prefix):], token) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// QueryTokenAuth accepts the token from the ?token= query parameter as well
// as the Authorization header. Browsers cannot set headers on a WebSocket
// handshake.
func QueryTokenAuth(token string) func(http.Handler) http.Handler {
	bearer := BearerAuth(token)
	return func(next http.Handler) http.Handler {
		withHeader := bearer(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if q := r.URL.Query().Get("token"); q != "" {
				if !tokenMatches(q, token) {
					httpError(w, http.StatusUnauthorized, "authentication_error", "invalid token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			withHeader.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
