package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/tenant-gateway/services"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := err.Error()
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsInternalError(err):
		// Only the correlation id leaves the process; the cause stays in the log.
		logger.Error("internal server error", zap.Error(err), zap.Any("details", details))
		var safe map[string]interface{}
		if id, ok := details["correlation_id"]; ok {
			safe = map[string]interface{}{"correlation_id": id}
		}
		writeErr = utils.WriteError(w, http.StatusInternalServerError, "An internal error occurred", safe)

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}

	if domainErr != nil {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
