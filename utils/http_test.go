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

		require.NoError(t, WriteJSON(w, http.StatusOK, map[string]string{"message": "test"}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusNoContent, nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteSuccess(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, data interface{}) error
		status int
	}{
		{"ok", WriteOK, http.StatusOK},
		{"created", WriteCreated, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, tt.write(w, map[string]string{"slug": "acme"}))

			assert.Equal(t, tt.status, w.Code)
			var response SuccessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, "acme", response.Data.(map[string]interface{})["slug"])
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestNoStore(t *testing.T) {
	w := httptest.NewRecorder()

	NoStore(w)
	require.NoError(t, WriteOK(w, nil))

	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteBadRequest(w, "Validation failed", map[string]interface{}{"slug": "invalid format"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeError(t, w)
	assert.Equal(t, CodeBadRequest, response.Error)
	assert.Equal(t, "Validation failed", response.Message)
	assert.Equal(t, "invalid format", response.Details["slug"])
}

func TestWriteUnauthorized(t *testing.T) {
	t.Run("with challenge", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, "Invalid token", `Bearer error="invalid_token"`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
		response := decodeError(t, w)
		assert.Equal(t, CodeUnauthorized, response.Error)
		assert.Equal(t, "Invalid token", response.Message)
	})

	t.Run("defaults", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, "", ""))

		assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Authentication required", decodeError(t, w).Message)
	})
}

func TestWriteDefaultMessages(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter) error
		status  int
		code    string
		message string
	}{
		{"forbidden", func(w http.ResponseWriter) error { return WriteForbidden(w, "") }, http.StatusForbidden, CodeForbidden, "Access forbidden"},
		{"not found", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, CodeNotFound, "Resource not found"},
		{"internal", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, CodeInternal, "Internal server error"},
		{"forbidden custom", func(w http.ResponseWriter) error { return WriteForbidden(w, "Tenant is inactive") }, http.StatusForbidden, CodeForbidden, "Tenant is inactive"},
		{"not found custom", func(w http.ResponseWriter) error { return WriteNotFound(w, "Tenant not found") }, http.StatusNotFound, CodeNotFound, "Tenant not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.status, w.Code)
			response := decodeError(t, w)
			assert.Equal(t, tt.code, response.Error)
			assert.Equal(t, tt.message, response.Message)
		})
	}
}

func TestWriteConflict(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteConflict(w, "Slug already taken", map[string]interface{}{"slug": "acme"}))

	assert.Equal(t, http.StatusConflict, w.Code)
	response := decodeError(t, w)
	assert.Equal(t, CodeConflict, response.Error)
	assert.Equal(t, "acme", response.Details["slug"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		code    string
		want    string
	}{
		{"bad request", http.StatusBadRequest, "Invalid input", CodeBadRequest, "Invalid input"},
		{"unauthorized", http.StatusUnauthorized, "Not authenticated", CodeUnauthorized, "Not authenticated"},
		{"forbidden", http.StatusForbidden, "No access", CodeForbidden, "No access"},
		{"not found", http.StatusNotFound, "Not found", CodeNotFound, "Not found"},
		{"conflict", http.StatusConflict, "Conflict", CodeConflict, "Conflict"},
		{"unmapped status is internal", http.StatusServiceUnavailable, "Try later", CodeInternal, "Try later"},
		{"empty message uses status text", http.StatusNotFound, "", CodeNotFound, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, WriteError(w, tt.status, tt.message, nil))

			assert.Equal(t, tt.status, w.Code)
			response := decodeError(t, w)
			assert.Equal(t, tt.code, response.Error)
			assert.Equal(t, tt.want, response.Message)
			assert.Nil(t, response.Details)
		})
	}

	t.Run("details are passed through", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteError(w, http.StatusInternalServerError, "Failed", map[string]interface{}{"correlation_id": "c-1"}))

		assert.Equal(t, "c-1", decodeError(t, w).Details["correlation_id"])
	})
}
