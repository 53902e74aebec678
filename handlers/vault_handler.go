package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/vault"
	"github.com/upb/authvault/middleware"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

const (
	maxRequestBodySize   = 1 << 20
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// CreateSecretRequest represents a request to create a secret
type CreateSecretRequest struct {
	SecretName  string `json:"secretName" validate:"required,secretname"`
	SecretValue string `json:"secretValue" validate:"required"`
	ContentType string `json:"contentType,omitempty" validate:"max=255"`
}

// UpdateSecretRequest represents a request to update a secret
type UpdateSecretRequest struct {
	SecretValue string `json:"secretValue" validate:"required"`
	ContentType string `json:"contentType,omitempty" validate:"max=255"`
}

// InitializeVaultRequest represents a request to (re)connect the vault
type InitializeVaultRequest struct {
	KeyVaultURL  string `json:"keyVaultUrl" validate:"required,url"`
	TenantID     string `json:"tenantId,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// VaultStatusResponse represents the vault status in API responses
type VaultStatusResponse struct {
	Enabled     bool   `json:"enabled"`
	Initialized bool   `json:"initialized"`
	VaultURL    string `json:"vaultUrl"`
	Timestamp   string `json:"timestamp"`
}

// SecretListResponse lists secret names, never values
type SecretListResponse struct {
	Count   int      `json:"count"`
	Secrets []string `json:"secrets"`
}

// SecretExistsResponse reports whether a secret exists
type SecretExistsResponse struct {
	SecretName string `json:"secretName"`
	Exists     bool   `json:"exists"`
}

// SecretChangeResponse acknowledges a create or update
type SecretChangeResponse struct {
	SecretName string `json:"secretName"`
}

// AuditEntryResponse is one audit record for a secret
type AuditEntryResponse struct {
	Action     models.AuditAction  `json:"action"`
	ActorEmail string              `json:"actorEmail"`
	Outcome    models.AuditOutcome `json:"outcome"`
	RequestID  string              `json:"requestId,omitempty"`
	Timestamp  string              `json:"timestamp"`
}

// SecretBroker defines the vault operations exposed over HTTP
type SecretBroker interface {
	Status(ctx context.Context) models.VaultStatus
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, name string) (bool, error)
	Set(ctx context.Context, actor *models.Identity, name, value, contentType string) error
	Update(ctx context.Context, actor *models.Identity, name, value, contentType string) error
	Delete(ctx context.Context, actor *models.Identity, name string) error
	MigrateToVault(ctx context.Context, actor *models.Identity) (*models.MigrationReport, error)
	Initialize(ctx context.Context, actor *models.Identity, cfg vault.Config) error
}

// AuditReader reads persisted audit entries
type AuditReader interface {
	ListByResource(ctx context.Context, resourceType, resourceName string, limit int) ([]*models.AuditLog, error)
}

// VaultHandler serves the admin vault API. Routes are mounted behind
// RequireAuth and RequireAdmin; the broker checks the role again.
type VaultHandler struct {
	broker SecretBroker
	audits AuditReader
	logger *zap.Logger
}

// NewVaultHandler creates a new VaultHandler. audits may be nil when no
// database is configured.
func NewVaultHandler(broker SecretBroker, audits AuditReader, logger *zap.Logger) *VaultHandler {
	return &VaultHandler{
		broker: broker,
		audits: audits,
		logger: logger,
	}
}

// HandleStatus handles GET /api/v1/vault/status
func (h *VaultHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.broker.Status(r.Context())

	_ = utils.WriteOK(w, VaultStatusResponse{
		Enabled:     status.Enabled,
		Initialized: status.Initialized,
		VaultURL:    status.URL,
		Timestamp:   status.Timestamp.Format(time.RFC3339),
	})
}

// HandleListSecrets handles GET /api/v1/vault/secrets
func (h *VaultHandler) HandleListSecrets(w http.ResponseWriter, r *http.Request) {
	names, err := h.broker.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if names == nil {
		names = []string{}
	}

	_ = utils.WriteOK(w, SecretListResponse{Count: len(names), Secrets: names})
}

// HandleSecretExists handles GET /api/v1/vault/secrets/{name}/exists
func (h *VaultHandler) HandleSecretExists(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	exists, err := h.broker.Exists(r.Context(), name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, SecretExistsResponse{SecretName: name, Exists: exists})
}

// HandleCreateSecret handles POST /api/v1/vault/secrets
func (h *VaultHandler) HandleCreateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSecretRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor := middleware.GetIdentityFromContext(ctx)
	if err := h.broker.Set(ctx, actor, req.SecretName, req.SecretValue, req.ContentType); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, SecretChangeResponse{SecretName: req.SecretName})
}

// HandleUpdateSecret handles PUT /api/v1/vault/secrets/{name}
func (h *VaultHandler) HandleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	var req UpdateSecretRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor := middleware.GetIdentityFromContext(ctx)
	if err := h.broker.Update(ctx, actor, name, req.SecretValue, req.ContentType); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, SecretChangeResponse{SecretName: name})
}

// HandleDeleteSecret handles DELETE /api/v1/vault/secrets/{name}
func (h *VaultHandler) HandleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	actor := middleware.GetIdentityFromContext(ctx)
	if err := h.broker.Delete(ctx, actor, name); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Secret deleted")
}

// HandleMigrate handles POST /api/v1/vault/migrate. Per-secret failures are
// part of the report and still return 200.
func (h *VaultHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.broker.MigrateToVault(ctx, middleware.GetIdentityFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, report)
}

// HandleInitialize handles POST /api/v1/vault/initialize
func (h *VaultHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InitializeVaultRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg := vault.Config{
		URL:          req.KeyVaultURL,
		TenantID:     req.TenantID,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
	}
	if err := h.broker.Initialize(ctx, middleware.GetIdentityFromContext(ctx), cfg); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Vault initialized")
}

// HandleSecretAudit handles GET /api/v1/vault/secrets/{name}/audit
func (h *VaultHandler) HandleSecretAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	if h.audits == nil {
		_ = utils.WriteNotFound(w, "Audit log is not available")
		return
	}
	if err := vault.ValidateName(name); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	limit := defaultAuditPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAuditPageSize {
			_ = utils.WriteBadRequest(w, "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	entries, err := h.audits.ListByResource(ctx, models.AuditResourceSecret, name, limit)
	if err != nil {
		h.logger.Error("failed to list audit entries",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("secret_name", name),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve audit entries")
		return
	}

	responses := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = AuditEntryResponse{
			Action:     e.Action,
			ActorEmail: e.ActorEmail,
			Outcome:    e.Outcome,
			RequestID:  e.RequestID,
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	_ = utils.WriteOK(w, responses)
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *VaultHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}
