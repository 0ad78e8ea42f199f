package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth gates routes behind a shared token. Failures answer with the
// usual error envelope plus a WWW-Authenticate challenge.
func BearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(r.Header.Get("Authorization"), expected) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="inkframe"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenMatches compares the presented credential in constant time so the
// middleware leaks nothing about the token through timing.
func tokenMatches(auth string, expected []byte) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), expected) == 1
}
