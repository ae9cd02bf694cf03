// ABOUTME: Tests for static bearer-token authentication middleware
// ABOUTME: Covers missing, malformed, wrong, and matching Authorization headers

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   string
	}{
		{"valid", "Bearer my-token", "my-token", ""},
		{"missing header", "", "", "missing authorization header"},
		{"wrong scheme", "Basic abc123", "", "invalid authorization header format"},
		{"empty token", "Bearer ", "", "empty token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, errMsg := extractBearerToken(tt.header)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantErr, errMsg)
		})
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")

	assert.True(t, v.Verify("s3cret"))
	assert.False(t, v.Verify("wrong"))
	assert.False(t, v.Verify(""))
	assert.False(t, v.Verify("s3cret "))
}

func TestMiddleware(t *testing.T) {
	called := false
	handler := Middleware(NewVerifier("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantNext   bool
	}{
		{"no header", "", http.StatusUnauthorized, false},
		{"malformed", "Token s3cret", http.StatusUnauthorized, false},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized, false},
		{"correct secret", "Bearer s3cret", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, called)
			if !tt.wantNext {
				assert.JSONEq(t, `{"error":"Não autorizado"}`, rec.Body.String())
			}
		})
	}
}
