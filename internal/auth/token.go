// ABOUTME: Static bearer-token authentication for API endpoints
// ABOUTME: Compares the Authorization header against the configured shared secret

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Verifier checks presented bearer tokens against the configured secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
// The secret must be non-empty; config validation enforces this upstream.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether the presented token matches the configured secret.
// Comparison is constant-time.
func (v *Verifier) Verify(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), v.secret) == 1
}

// Middleware creates an HTTP middleware that requires a matching bearer token.
// Requests with a missing, malformed, or mismatched token receive 401 with the
// gateway's standard error body.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" || !verifier.Verify(token) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Não autorizado"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
