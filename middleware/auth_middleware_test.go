package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockSessionResolver is a mock implementation of SessionResolver
type MockSessionResolver struct {
	mock.Mock
}

func (m *MockSessionResolver) Resolve(ctx context.Context, tok string) (models.Identity, error) {
	args := m.Called(ctx, tok)
	return args.Get(0).(models.Identity), args.Error(1)
}

var testUser = models.Identity{
	ID:    "5f0c6a6e-1f0b-4d7e-9f43-2a9a3b8e9c11",
	Email: "user@example.com",
	Name:  "Ayşe",
	Role:  models.RoleUser,
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token in Authorization header allows request", func(t *testing.T) {
		resolver := new(MockSessionResolver)
		m := NewAuthMiddleware(resolver, logger)
		resolver.On("Resolve", mock.Anything, "valid-token").Return(testUser, nil)

		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, testUser, identity)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resolver.AssertExpectations(t)
	})

	t.Run("valid token in cookie allows request", func(t *testing.T) {
		resolver := new(MockSessionResolver)
		m := NewAuthMiddleware(resolver, logger)
		resolver.On("Resolve", mock.Anything, "cookie-token").Return(testUser, nil)

		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.AddCookie(&http.Cookie{Name: token.CookieName, Value: "cookie-token"})
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resolver.AssertExpectations(t)
	})

	t.Run("missing token returns 401 without resolving", func(t *testing.T) {
		resolver := new(MockSessionResolver)
		m := NewAuthMiddleware(resolver, logger)

		called := false
		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		assert.False(t, called)
		resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})

	t.Run("rejected token returns 401", func(t *testing.T) {
		resolver := new(MockSessionResolver)
		m := NewAuthMiddleware(resolver, logger)
		resolver.On("Resolve", mock.Anything, "bad").Return(models.Identity{}, errors.New("invalid"))

		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resolver.AssertExpectations(t)
	})
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware(new(MockSessionResolver), zap.NewNop())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		identity *models.Identity
		required models.UserRole
		want     int
	}{
		{"no identity", nil, models.RoleAdmin, http.StatusUnauthorized},
		{"wrong role", &testUser, models.RoleAdmin, http.StatusForbidden},
		{"matching role", &testUser, models.RoleUser, http.StatusOK},
		{"admin passes editor check", &models.Identity{ID: "a", Role: models.RoleAdmin}, models.RoleEditor, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()

			m.RequireRole(tt.required)(ok).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestExtractToken(t *testing.T) {
	t.Run("header takes precedence over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header-token")
		req.AddCookie(&http.Cookie{Name: token.CookieName, Value: "cookie-token"})
		assert.Equal(t, "header-token", ExtractToken(req))
	})

	t.Run("falls back to cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		req.AddCookie(&http.Cookie{Name: token.CookieName, Value: "cookie-token"})
		assert.Equal(t, "cookie-token", ExtractToken(req))
	})

	t.Run("other cookie names are ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "legacy"})
		assert.Empty(t, ExtractToken(req))
	})

	t.Run("bearer scheme is case-insensitive", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer abc")
		assert.Equal(t, "abc", ExtractToken(req))
	})
}

func TestGetRequestIDFromContext(t *testing.T) {
	assert.Empty(t, GetRequestIDFromContext(context.Background()))
	assert.Equal(t, "req-1", GetRequestIDFromContext(WithRequestID(context.Background(), "req-1")))
}
