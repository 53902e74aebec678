package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/utils"
)

// HandleServiceError maps domain errors to HTTP responses. Only the domain
// message reaches the client; wrapped causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.Error("unhandled error type", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	}

	var writeErr error
	switch domainErr.Type {
	case shared.ErrorTypeUnauthenticated:
		writeErr = utils.WriteUnauthorized(w, domainErr.Message, domainErr.Code)

	case shared.ErrorTypeForbidden:
		writeErr = utils.WriteForbidden(w, "Admin access required")

	case shared.ErrorTypeValidation:
		writeErr = utils.WriteBadRequest(w, clientMessage(err, domainErr), domainErr.Details)

	case shared.ErrorTypeVaultDisabled:
		writeErr = utils.WriteErrorCode(w, http.StatusBadRequest, "Vault is not enabled", string(shared.ErrorTypeVaultDisabled))

	case shared.ErrorTypeNotFound:
		writeErr = utils.WriteNotFound(w, "Secret not found")

	case shared.ErrorTypeConflict:
		writeErr = utils.WriteConflict(w, domainErr.Message, domainErr.Details)

	case shared.ErrorTypeRateLimit:
		writeErr = utils.WriteTooManyRequests(w, "", domainErr.Details)

	case shared.ErrorTypeUpstream:
		// Cause already logged by the broker with the secret name
		writeErr = utils.WriteErrorCode(w, http.StatusInternalServerError, domainErr.Message, string(shared.ErrorTypeUpstream))

	default:
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}

	logger.Debug("handled service error",
		zap.String("type", string(domainErr.Type)),
		zap.String("code", domainErr.Code),
		zap.String("message", domainErr.Message))
}

// clientMessage returns the text a validation sentinel was wrapped with,
// e.g. "keyVaultUrl must be an absolute http(s) URL"
func clientMessage(err error, domainErr *shared.DomainError) string {
	if domainErr.Err != nil || err == error(domainErr) {
		return domainErr.Message
	}
	if msg := strings.TrimPrefix(err.Error(), domainErr.Error()+": "); msg != "" {
		return msg
	}
	return domainErr.Message
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, "Invalid request body", nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
