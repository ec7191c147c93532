package utils

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in ErrorResponse.Error
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_error"
)

var statusCodes = map[int]string{
	http.StatusBadRequest:   CodeBadRequest,
	http.StatusUnauthorized: CodeUnauthorized,
	http.StatusForbidden:    CodeForbidden,
	http.StatusNotFound:     CodeNotFound,
	http.StatusConflict:     CodeConflict,
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes a 201 Created response with optional data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// NoStore marks the response as uncacheable. Call before writing the body.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteError writes an error response whose code follows the status.
// Statuses without a dedicated code are reported as internal_error.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	code, ok := statusCodes[status]
	if !ok {
		code = CodeInternal
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteUnauthorized writes a 401 response. A non-empty challenge is sent as
// the WWW-Authenticate header.
func WriteUnauthorized(w http.ResponseWriter, message, challenge string) error {
	if message == "" {
		message = "Authentication required"
	}
	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	return WriteError(w, http.StatusUnauthorized, message, nil)
}

// WriteForbidden writes a 403 Forbidden response
func WriteForbidden(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Access forbidden"
	}
	return WriteError(w, http.StatusForbidden, message, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteError(w, http.StatusNotFound, message, nil)
}

// WriteConflict writes a 409 Conflict response
func WriteConflict(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusConflict, message, details)
}

// WriteInternalServerError writes a 500 response. message must not carry
// internal error text.
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, message, nil)
}
