package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(userID.String()))
	})
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	handler := auth.AuthMiddleware(echoUser(t))
	userID := uuid.New()

	serve := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.IssueToken(userID, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		require.NoError(t, err)

		rec := serve("Bearer " + token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID.String(), rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("Basic abc").Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := auth.IssueToken(userID, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer "+token).Code)
	})

	t.Run("other secret", func(t *testing.T) {
		token, err := NewAuthenticator("other").IssueToken(userID, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer "+token).Code)
	})

	t.Run("non uuid subject", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "42"}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve("Bearer "+token).Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
