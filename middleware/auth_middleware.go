package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

// Trusted headers read in bypass mode
const (
	HeaderAdminEmail = "x-admin-email"
	HeaderUserID     = "x-user-id"
	HeaderUserEmail  = "x-user-email"
)

// IdentityResolver turns request credentials into an identity
type IdentityResolver interface {
	Resolve(ctx context.Context, creds auth.Credentials) (*models.Identity, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	resolver IdentityResolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver IdentityResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// RequireAuth resolves the caller identity and rejects the request with 401
// when none can be established
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		identity, err := m.resolver.Resolve(ctx, credentialsFromRequest(r))
		if err != nil {
			code := shared.GetErrorCode(err)
			m.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.String("reason", code),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, unauthenticatedMessage(code), code)
			return
		}

		ctx = WithIdentity(ctx, identity)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", identity.ID),
			zap.String("email", identity.Email),
			zap.String("role", string(identity.Role)))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that requires a specific role. Run it after
// RequireAuth.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)
			identity := GetIdentityFromContext(ctx)

			if err := auth.RequireRole(identity, role); err != nil {
				if shared.IsUnauthenticatedError(err) {
					m.logger.Error("identity not found in context",
						zap.String("request_id", requestID))
					_ = utils.WriteUnauthorized(w, "Authentication required", "")
					return
				}
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_role", string(role)),
					zap.String("user_role", string(identity.Role)),
					zap.String("email", identity.Email))
				_ = utils.WriteForbidden(w, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(admin)
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRole(models.RoleAdmin)(next)
}

func credentialsFromRequest(r *http.Request) auth.Credentials {
	return auth.Credentials{
		BearerToken: extractBearerToken(r),
		AdminEmail:  strings.TrimSpace(r.Header.Get(HeaderAdminEmail)),
		UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
		UserEmail:   strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
	}
}

func unauthenticatedMessage(code string) string {
	switch code {
	case shared.CodeMissingToken:
		return "Missing or invalid authorization"
	case shared.CodeTokenExpired:
		return "Token expired"
	case shared.CodeTokenInvalid:
		return "Invalid token"
	case shared.CodeStoreUnavailable:
		return "Identity could not be resolved"
	default:
		return "Authentication required"
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
