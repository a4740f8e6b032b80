package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/mongoidentity/internal/domain/account"
	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	jwtService := account.NewJWTService("test-secret-key", "mongoidentity-test", time.Hour)
	authMiddleware := NewAuthMiddleware(jwtService, logger.NewDefault())

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		require.True(t, ok)
		w.Write([]byte(userID))
	})

	t.Run("should pass through a valid bearer token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(&identity.User{ID: "user-1", UserName: "alice"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user.Me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		authMiddleware.RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("should reject a missing Authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user.Me", nil)
		rec := httptest.NewRecorder()

		authMiddleware.RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject a malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user.Me", nil)
		req.Header.Set("Authorization", "Basic abc123")
		rec := httptest.NewRecorder()

		authMiddleware.RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject a token signed with a different secret", func(t *testing.T) {
		other := account.NewJWTService("another-secret", "mongoidentity-test", time.Hour)
		token, err := other.GenerateToken(&identity.User{ID: "user-1", UserName: "alice"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user.Me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		authMiddleware.RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChain(t *testing.T) {
	t.Run("should execute middleware outermost first", func(t *testing.T) {
		var order []string

		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		handler := Chain(tag("first"), tag("second"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"first", "second", "handler"}, order)
	})
}
