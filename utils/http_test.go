package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteOK(w, map[string]int{"count": 2})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, float64(2), response["data"].(map[string]interface{})["count"])
	assert.NotContains(t, response, "message")
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]string{"secretName": "k"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response SuccessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, "k", response.Data.(map[string]interface{})["secretName"])
}

func TestWriteMessage(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteMessage(w, "Secret deleted"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Secret deleted", response["message"])
	assert.NotContains(t, response, "data")
}

func TestWriteUnauthorized(t *testing.T) {
	t.Run("with code", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, "Token expired", "token_expired"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		response := decodeError(t, w)
		assert.False(t, response.Success)
		assert.Equal(t, "Token expired", response.Error)
		assert.Equal(t, "token_expired", response.Code)
	})

	t.Run("default message", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, "", ""))

		response := decodeError(t, w)
		assert.Equal(t, "Authentication required", response.Error)
		assert.Empty(t, response.Code)
	})
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name        string
		write       func(w http.ResponseWriter) error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "bad request",
			write:       func(w http.ResponseWriter) error { return WriteBadRequest(w, "", nil) },
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Bad request",
		},
		{
			name:        "forbidden",
			write:       func(w http.ResponseWriter) error { return WriteForbidden(w, "") },
			wantStatus:  http.StatusForbidden,
			wantMessage: "Access forbidden",
		},
		{
			name:        "not found",
			write:       func(w http.ResponseWriter) error { return WriteNotFound(w, "Secret not found") },
			wantStatus:  http.StatusNotFound,
			wantMessage: "Secret not found",
		},
		{
			name:        "conflict",
			write:       func(w http.ResponseWriter) error { return WriteConflict(w, "busy", nil) },
			wantStatus:  http.StatusConflict,
			wantMessage: "busy",
		},
		{
			name:        "too many requests",
			write:       func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) },
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: "Rate limit exceeded",
		},
		{
			name:        "internal server error",
			write:       func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)
			response := decodeError(t, w)
			assert.False(t, response.Success)
			assert.Equal(t, tt.wantMessage, response.Error)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]interface{}{"SecretName": "SecretName is required"}

	require.NoError(t, WriteError(w, http.StatusBadRequest, "Validation failed", details))

	response := decodeError(t, w)
	assert.False(t, response.Success)
	assert.Equal(t, "Validation failed", response.Error)
	assert.Equal(t, "SecretName is required", response.Details["SecretName"])
}

func TestWriteErrorCode(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteErrorCode(w, http.StatusBadRequest, "Vault is not enabled", "vault_disabled"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeError(t, w)
	assert.Equal(t, "vault_disabled", response.Code)
}
