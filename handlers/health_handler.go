package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Keys      map[string]interface{} `json:"signing_keys,omitempty"`
}

// KeyCacheStats reports the state of the signing key cache
type KeyCacheStats interface {
	Stats() map[string]interface{}
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     *sql.DB
	keys   KeyCacheStats
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. keys may be nil.
func NewHealthHandler(db *sql.DB, keys KeyCacheStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		keys:   keys,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only; always 200 while the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
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
	// Key cache state is informational; keys are fetched lazily on first use.
	if h.keys != nil {
		response.Keys = h.keys.Stats()
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
