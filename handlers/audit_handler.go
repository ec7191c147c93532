package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// AuditLogger accepts audit trail entries. Implementations must not block.
type AuditLogger interface {
	LogEvent(log *models.AuditLog) error
}

// AuditReader lists a tenant's audit trail
type AuditReader interface {
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler serves the audit trail of the resolved tenant
type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		reader: reader,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/audit
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := intQueryParam(r, "limit")
	if err != nil {
		_ = utils.WriteBadRequest(w, "limit must be an integer", nil)
		return
	}
	offset, err := intQueryParam(r, "offset")
	if err != nil {
		_ = utils.WriteBadRequest(w, "offset must be an integer", nil)
		return
	}

	logs, err := h.reader.List(ctx, middleware.GetTenantIDFromContext(ctx), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"entries": logs,
		"count":   len(logs),
	})
}

func intQueryParam(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// newAuditEntry stamps an entry with the caller and request metadata
func newAuditEntry(r *http.Request, tenantID uuid.UUID, action models.AuditAction, resourceType, resourceName string) *models.AuditLog {
	ctx := r.Context()
	entry := models.NewAuditLog(tenantID, action, resourceType).
		WithResource(resourceName).
		WithRequest(middleware.GetRequestIDFromContext(ctx), clientIP(r), r.UserAgent())
	if principal := middleware.GetPrincipalFromContext(ctx); principal != nil {
		entry.WithActor(principal.ID)
	}
	return entry
}

// recordAudit hands the entry to auditor. A nil auditor disables the trail.
func recordAudit(auditor AuditLogger, logger *zap.Logger, entry *models.AuditLog) {
	if auditor == nil {
		return
	}
	if err := auditor.LogEvent(entry); err != nil {
		logger.Warn("audit event not recorded",
			zap.String("action", string(entry.Action)),
			zap.String("request_id", entry.RequestID),
			zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
