package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

// MockIdentityResolver is a mock implementation of IdentityResolver
type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) Resolve(ctx context.Context, creds auth.Credentials) (*models.Identity, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("resolved identity is placed in context", func(t *testing.T) {
		resolver := new(MockIdentityResolver)
		middleware := NewAuthMiddleware(resolver, logger)

		identity := &models.Identity{ID: "user-123", Email: "user@example.com", Role: models.RoleUser}
		resolver.On("Resolve", mock.Anything, auth.Credentials{BearerToken: "valid-token"}).Return(identity, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetIdentityFromContext(r.Context())
			require.NotNil(t, got)
			assert.Equal(t, identity.ID, got.ID)
			assert.Equal(t, identity.Email, got.Email)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resolver.AssertExpectations(t)
	})

	t.Run("bypass headers are forwarded", func(t *testing.T) {
		resolver := new(MockIdentityResolver)
		middleware := NewAuthMiddleware(resolver, logger)

		want := auth.Credentials{
			AdminEmail: "admin@example.com",
			UserID:     "9b2f6a0e-0000-4000-8000-000000000010",
			UserEmail:  "user@example.com",
		}
		resolver.On("Resolve", mock.Anything, want).
			Return(&models.Identity{ID: auth.BypassAdminID, Email: "admin@example.com", Role: models.RoleAdmin}, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderAdminEmail, " admin@example.com ")
		req.Header.Set(HeaderUserID, want.UserID)
		req.Header.Set(HeaderUserEmail, want.UserEmail)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resolver.AssertExpectations(t)
	})

	t.Run("failures return 401 with reason code", func(t *testing.T) {
		tests := []struct {
			name        string
			err         error
			wantCode    string
			wantMessage string
		}{
			{"missing token", shared.Unauthenticated(shared.CodeMissingToken, "missing bearer token", nil), shared.CodeMissingToken, "Missing or invalid authorization"},
			{"expired token", shared.Unauthenticated(shared.CodeTokenExpired, "token expired", nil), shared.CodeTokenExpired, "Token expired"},
			{"invalid token", shared.Unauthenticated(shared.CodeTokenInvalid, "token rejected", nil), shared.CodeTokenInvalid, "Invalid token"},
			{"store unavailable", shared.Unauthenticated(shared.CodeStoreUnavailable, "identity store unavailable", assert.AnError), shared.CodeStoreUnavailable, "Identity could not be resolved"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resolver := new(MockIdentityResolver)
				middleware := NewAuthMiddleware(resolver, logger)
				resolver.On("Resolve", mock.Anything, mock.Anything).Return(nil, tt.err)

				handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("handler should not be called")
				}))

				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.Header.Set("Authorization", "Bearer some-token")
				w := httptest.NewRecorder()

				handler.ServeHTTP(w, req)

				assert.Equal(t, http.StatusUnauthorized, w.Code)
				body := decodeErrorBody(t, w)
				assert.False(t, body.Success)
				assert.Equal(t, tt.wantCode, body.Code)
				assert.Equal(t, tt.wantMessage, body.Error)
			})
		}
	})

	t.Run("malformed authorization header is not a bearer token", func(t *testing.T) {
		resolver := new(MockIdentityResolver)
		middleware := NewAuthMiddleware(resolver, logger)
		resolver.On("Resolve", mock.Anything, auth.Credentials{}).
			Return(nil, shared.Unauthenticated(shared.CodeMissingToken, "missing bearer token", nil))

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resolver.AssertExpectations(t)
	})
}

func TestRequireAuth_WithTokenCodec(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef")},
		auth.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	resolver := auth.NewIdentityResolver(codec, nil, auth.ResolverConfig{}, zap.NewNop(), nil)
	middleware := NewAuthMiddleware(resolver, zap.NewNop())
	handler := middleware.RequireAuth(middleware.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	admin := models.Identity{ID: "00000000-0000-0000-0000-0000000000aa", Email: "ops@example.com", Role: models.RoleAdmin}
	user := models.Identity{ID: "00000000-0000-0000-0000-0000000000bb", Email: "dev@example.com", Role: models.RoleUser}

	serve := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vault/status", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("admin token passes", func(t *testing.T) {
		token, err := codec.Issue(admin, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, serve(token).Code)
	})

	t.Run("user token is forbidden", func(t *testing.T) {
		token, err := codec.Issue(user, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, serve(token).Code)
	})

	t.Run("expired admin token reports token_expired", func(t *testing.T) {
		token, err := codec.Issue(admin, time.Minute)
		require.NoError(t, err)
		now = now.Add(2 * time.Minute)
		defer func() { now = now.Add(-2 * time.Minute) }()

		w := serve(token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, shared.CodeTokenExpired, decodeErrorBody(t, w).Code)
	})

	t.Run("bypass headers are ignored when bypass is off", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vault/status", nil)
		req.Header.Set(HeaderAdminEmail, "admin@example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, shared.CodeMissingToken, decodeErrorBody(t, w).Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := zap.NewNop()
	middleware := NewAuthMiddleware(new(MockIdentityResolver), logger)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		identity   *models.Identity
		role       models.Role
		wantStatus int
	}{
		{"admin satisfies admin", &models.Identity{ID: "a", Role: models.RoleAdmin}, models.RoleAdmin, http.StatusOK},
		{"admin satisfies user", &models.Identity{ID: "a", Role: models.RoleAdmin}, models.RoleUser, http.StatusOK},
		{"user satisfies user", &models.Identity{ID: "u", Role: models.RoleUser}, models.RoleUser, http.StatusOK},
		{"user is forbidden from admin", &models.Identity{ID: "u", Role: models.RoleUser}, models.RoleAdmin, http.StatusForbidden},
		{"no identity is unauthenticated", nil, models.RoleAdmin, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			}
			w := httptest.NewRecorder()

			middleware.RequireRole(tt.role)(ok).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequestContext(t *testing.T) {
	var got string
	handler := chimiddleware.RequestID(RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-abc", got)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetIdentityFromContext(ctx))

	identity := &models.Identity{ID: "x", Email: "x@example.com", Role: models.RoleUser}
	ctx = WithIdentity(ctx, identity)
	assert.Same(t, identity, GetIdentityFromContext(ctx))
}
