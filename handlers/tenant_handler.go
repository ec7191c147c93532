package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/services"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// UpdateTenantRequest represents a request to change a tenant's activation
type UpdateTenantRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// TenantService defines the tenant administration operations used by the handler
type TenantService interface {
	Provision(ctx context.Context, req services.ProvisionTenantRequest) (*models.Tenant, error)
	Get(ctx context.Context, identifier string) (*models.Tenant, error)
	SetActive(ctx context.Context, identifier string, active bool) (*models.Tenant, error)
}

// TenantHandler handles tenant administration HTTP requests
type TenantHandler struct {
	service TenantService
	auditor AuditLogger
	logger  *zap.Logger
}

// NewTenantHandler creates a new TenantHandler. auditor may be nil.
func NewTenantHandler(service TenantService, auditor AuditLogger, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		service: service,
		auditor: auditor,
		logger:  logger,
	}
}

// HandleGet handles GET /api/v1/admin/tenants/{identifier}
func (h *TenantHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.Get(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tenant)
}

// HandleProvision handles POST /api/v1/admin/tenants
func (h *TenantHandler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.ProvisionTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	tenant, err := h.service.Provision(ctx, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	actor := ""
	if principal := middleware.GetPrincipalFromContext(ctx); principal != nil {
		actor = principal.ID
	}
	h.logger.Info("tenant provisioned via admin api",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("actor", actor))
	recordAudit(h.auditor, h.logger,
		newAuditEntry(r, tenant.ID, models.AuditActionTenantProvisioned, "tenant", tenant.Slug).
			WithDetails(map[string]string{"owner_user_id": req.OwnerUserID}))

	_ = utils.WriteCreated(w, tenant)
}

// HandleUpdate handles PATCH /api/v1/admin/tenants/{identifier}
func (h *TenantHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	tenant, err := h.service.SetActive(r.Context(), chi.URLParam(r, "identifier"), *req.IsActive)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	action := models.AuditActionTenantDeactivated
	if tenant.IsActive {
		action = models.AuditActionTenantActivated
	}
	recordAudit(h.auditor, h.logger, newAuditEntry(r, tenant.ID, action, "tenant", tenant.Slug))

	_ = utils.WriteOK(w, tenant)
}
