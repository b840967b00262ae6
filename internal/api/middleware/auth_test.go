package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/api/middleware"
	"github.com/screenlink/screenlink/internal/auth"
)

// stubValidator maps bearer tokens to actor IDs.
type stubValidator map[string]string

func (v stubValidator) ValidateAccessToken(token string) (string, error) {
	if actorID, ok := v[token]; ok {
		return actorID, nil
	}
	return "", auth.ErrInvalidAccessToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingAuthorizationHeader(t *testing.T) {
	handler := middleware.Auth(stubValidator{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/realtime/stream", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "missing authorization header")
}

func TestAuth_InvalidAuthorizationFormat(t *testing.T) {
	handler := middleware.Auth(stubValidator{"token123": "usr_1"})(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "token123"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"bearer no space", "bearertoken123"},
		{"empty bearer", "Bearer "},
		{"just bearer", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuth_ValidatorErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		detail string
	}{
		{"expired", auth.ErrAccessTokenExpired, "access token has expired"},
		{"invalid", auth.ErrInvalidAccessToken, "invalid access token"},
		{"other", errors.New("boom"), "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := validatorFunc(func(string) (string, error) { return "", tt.err })
			handler := middleware.Auth(validator)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", "Bearer whatever")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestAuth_ValidJWT(t *testing.T) {
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.screenlink.io",
		Audience:   "screenlink-api",
	})
	token, _, err := jwtService.GenerateAccessToken("usr_owner")
	require.NoError(t, err)

	var captured string
	handler := middleware.Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = middleware.GetActorID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			captured = ""
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", prefix+token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "usr_owner", captured)
		})
	}
}

func TestGetActorID_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetActorID(req.Context()))
}

type validatorFunc func(string) (string, error)

func (f validatorFunc) ValidateAccessToken(token string) (string, error) { return f(token) }
