package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	"github.com/kosttiik/subscription-notifier/internal/models"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newTestMaker(t *testing.T) *token.Maker {
	maker, err := token.NewMaker("test-secret-key", token.DefaultSessionTTL, token.DefaultActionTTL)
	require.NoError(t, err)
	return maker
}

func issueTestToken(t *testing.T, maker *token.Maker) string {
	tokenStr, err := maker.IssueSession(
		&models.User{UID: "uid-1", Email: "user@example.com"},
		models.DefaultPlan())
	require.NoError(t, err)
	return tokenStr
}

func claimsProbe(sawClaims *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, *sawClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	maker := newTestMaker(t)
	valid := issueTestToken(t, maker)

	tests := []struct {
		name           string
		authHeader     string
		wantStatusCode int
		wantClaims     bool
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, true},
		{"missing header", "", http.StatusUnauthorized, false},
		{"not bearer", "Basic abc", http.StatusUnauthorized, false},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawClaims bool
			handler := AuthMiddleware(maker, newNoopLogger())(claimsProbe(&sawClaims))

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantClaims, sawClaims)
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	maker := newTestMaker(t)
	valid := issueTestToken(t, maker)

	tests := []struct {
		name       string
		authHeader string
		wantClaims bool
	}{
		{"valid token", "Bearer " + valid, true},
		{"no header passes as anonymous", "", false},
		{"invalid token passes as anonymous", "Bearer garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawClaims bool
			handler := OptionalAuthMiddleware(maker, newNoopLogger())(claimsProbe(&sawClaims))

			req := httptest.NewRequest(http.MethodPost, "/subscribe", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			// опциональный middleware никогда не прерывает запрос
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantClaims, sawClaims)
		})
	}
}
