package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/authvault/models"
	"github.com/upb/authvault/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// DatabaseChecker checks relational store connectivity
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// VaultChecker reports vault readiness
type VaultChecker interface {
	IsConfigured() bool
	Status(ctx context.Context) models.VaultStatus
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     DatabaseChecker
	vault  VaultChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Either checker may be nil.
func NewHealthHandler(db DatabaseChecker, vault VaultChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		vault:  vault,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that all dependencies are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db == nil {
		checks["database"] = "disabled"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	// An unconfigured vault is a valid mode; a configured one must be reachable
	switch {
	case h.vault == nil || !h.vault.IsConfigured():
		checks["vault"] = "disabled"
	case !h.vault.Status(ctx).Initialized:
		h.logger.Warn("vault health check failed")
		checks["vault"] = "unhealthy"
		allHealthy = false
	default:
		checks["vault"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if allHealthy {
		_ = utils.WriteOK(w, response)
		return
	}
	if err := utils.WriteJSON(w, httpStatus, utils.ErrorResponse{
		Error:   "Service not ready",
		Details: map[string]interface{}{"checks": checks, "timestamp": response.Timestamp},
	}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
