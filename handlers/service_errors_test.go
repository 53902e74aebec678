package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/utils"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{
			name:           "not found error",
			err:            fmt.Errorf("%w: openai-api-key", shared.ErrSecretNotFound),
			expectedStatus: http.StatusNotFound,
			expectedError:  "Secret not found",
		},
		{
			name:           "validation error keeps wrapping text",
			err:            fmt.Errorf("%w: keyVaultUrl must be an absolute http(s) URL", shared.ErrInvalidInput),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "keyVaultUrl must be an absolute http(s) URL",
		},
		{
			name:           "bare validation sentinel",
			err:            shared.ErrInvalidInput,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid input",
		},
		{
			name:           "unauthenticated error",
			err:            shared.ErrUnauthenticated,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "authentication required",
		},
		{
			name:           "token expired keeps reason code",
			err:            shared.ErrTokenExpired,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "authentication token expired",
			expectedCode:   shared.CodeTokenExpired,
		},
		{
			name:           "forbidden error",
			err:            fmt.Errorf("%w: admin required, caller is user", shared.ErrForbidden),
			expectedStatus: http.StatusForbidden,
			expectedError:  "Admin access required",
		},
		{
			name:           "vault disabled",
			err:            shared.ErrVaultDisabled,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Vault is not enabled",
			expectedCode:   "vault_disabled",
		},
		{
			name:           "upstream error hides cause",
			err:            shared.WrapUpstream("vault request failed", errors.New("dial tcp 10.9.9.9:8200: connection refused")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "vault request failed",
			expectedCode:   "upstream",
		},
		{
			name:           "conflict error",
			err:            shared.NewDomainError(shared.ErrorTypeConflict, "migration already in progress", nil),
			expectedStatus: http.StatusConflict,
			expectedError:  "migration already in progress",
		},
		{
			name:           "rate limit error",
			err:            shared.ErrRateLimitExceeded,
			expectedStatus: http.StatusTooManyRequests,
			expectedError:  "Rate limit exceeded",
		},
		{
			name:           "internal error",
			err:            shared.WrapInternal("database error", errors.New("pq: password authentication failed")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "An internal error occurred",
		},
		{
			name:           "unknown error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.False(t, response.Success)
			assert.Equal(t, tt.expectedError, response.Error)
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.NotContains(t, response.Error, "10.9.9.9")
			assert.NotContains(t, response.Error, "pq:")
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("structured validation error", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"SecretName": "SecretName is required"},
		}

		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, "SecretName is required", response.Details["SecretName"])
	})

	t.Run("decode error is generic", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, errors.New("invalid character '}' looking for beginning of value"), logger)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Invalid request body", response.Error)
	})
}
