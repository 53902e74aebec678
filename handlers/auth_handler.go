package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/authvault/middleware"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

// TokenIssuer signs bearer tokens
type TokenIssuer interface {
	Issue(identity models.Identity, ttl time.Duration) (string, error)
	DefaultTTL() time.Duration
}

// RefreshAuditor records token re-issues
type RefreshAuditor interface {
	LogTokenRefreshed(actor *models.Identity, requestID string) error
}

// TokenResponse carries a freshly issued token
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresAt string `json:"expiresAt"`
}

// AuthHandler serves identity endpoints for an already resolved caller
type AuthHandler struct {
	issuer  TokenIssuer
	auditor RefreshAuditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthHandler creates a new AuthHandler. auditor may be nil.
func NewAuthHandler(issuer TokenIssuer, auditor RefreshAuditor, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		issuer:  issuer,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleMe handles GET /api/v1/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "", "")
		return
	}

	_ = utils.WriteOK(w, identity)
}

// HandleRefresh handles POST /api/v1/auth/refresh. It issues a new token for
// whatever identity the request resolved to, including bypass identities.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	identity := middleware.GetIdentityFromContext(ctx)
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "", "")
		return
	}

	ttl := h.issuer.DefaultTTL()
	expiresAt := h.now().Add(ttl)
	token, err := h.issuer.Issue(*identity, ttl)
	if err != nil {
		h.logger.Error("failed to issue token",
			zap.String("request_id", requestID),
			zap.String("user_id", identity.ID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to issue token")
		return
	}

	if h.auditor != nil {
		if err := h.auditor.LogTokenRefreshed(identity, requestID); err != nil {
			h.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}

	h.logger.Info("token refreshed",
		zap.String("request_id", requestID),
		zap.String("user_id", identity.ID),
		zap.String("email", identity.Email))

	_ = utils.WriteOK(w, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
