package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/services"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// maxCredentialBody bounds PUT request bodies
const maxCredentialBody = 64 << 10

// PutCredentialRequest represents a request to store a credential
type PutCredentialRequest struct {
	Value string `json:"value" validate:"required"`
}

// CredentialResponse represents credential metadata in API responses.
// Value is set only when the caller asked for the decrypted secret.
type CredentialResponse struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// CredentialService defines the credential vault operations used by the handler
type CredentialService interface {
	Put(ctx context.Context, tenantID uuid.UUID, name, value, createdBy string) (*models.Credential, error)
	Get(ctx context.Context, tenantID uuid.UUID, name string) (*models.Credential, string, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.Credential, error)
	Delete(ctx context.Context, tenantID uuid.UUID, name string) error
}

// CredentialHandler handles tenant credential HTTP requests
type CredentialHandler struct {
	service CredentialService
	auditor AuditLogger
	logger  *zap.Logger
}

// NewCredentialHandler creates a new CredentialHandler. auditor may be nil.
func NewCredentialHandler(service CredentialService, auditor AuditLogger, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		service: service,
		auditor: auditor,
		logger:  logger,
	}
}

// HandlePut handles PUT /api/v1/credentials/{name}
func (h *CredentialHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	var req PutCredentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialBody)).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	createdBy := ""
	if principal := middleware.GetPrincipalFromContext(ctx); principal != nil {
		createdBy = principal.ID
	}

	cred, err := h.service.Put(ctx, middleware.GetTenantIDFromContext(ctx), name, req.Value, createdBy)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("credential stored",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", cred.TenantID.String()),
		zap.String("name", cred.Name))
	recordAudit(h.auditor, h.logger,
		newAuditEntry(r, cred.TenantID, models.AuditActionCredentialStored, "credential", cred.Name))

	_ = utils.WriteOK(w, credentialToResponse(cred, ""))
}

// HandleGet handles GET /api/v1/credentials/{name}
func (h *CredentialHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantIDFromContext(ctx)
	name := chi.URLParam(r, "name")

	cred, value, err := h.service.Get(ctx, tenantID, name)
	if err != nil {
		if correlationID, ok := services.GetErrorDetails(err)["correlation_id"]; ok {
			recordAudit(h.auditor, h.logger,
				newAuditEntry(r, tenantID, models.AuditActionCredentialDecryptError, "credential", name).
					WithDetails(map[string]interface{}{"correlation_id": correlationID}))
		}
		HandleServiceError(w, err, h.logger)
		return
	}
	recordAudit(h.auditor, h.logger,
		newAuditEntry(r, tenantID, models.AuditActionCredentialRead, "credential", cred.Name))

	utils.NoStore(w)
	_ = utils.WriteOK(w, credentialToResponse(cred, value))
}

// HandleList handles GET /api/v1/credentials
func (h *CredentialHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := h.service.List(ctx, middleware.GetTenantIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	responses := make([]CredentialResponse, len(creds))
	for i, c := range creds {
		responses[i] = credentialToResponse(c, "")
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"credentials": responses,
		"count":       len(responses),
	})
}

// HandleDelete handles DELETE /api/v1/credentials/{name}
func (h *CredentialHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantIDFromContext(ctx)
	name := chi.URLParam(r, "name")

	if err := h.service.Delete(ctx, tenantID, name); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	recordAudit(h.auditor, h.logger,
		newAuditEntry(r, tenantID, models.AuditActionCredentialDeleted, "credential", name))

	utils.WriteNoContent(w)
}

func credentialToResponse(c *models.Credential, value string) CredentialResponse {
	return CredentialResponse{
		ID:        c.ID,
		TenantID:  c.TenantID,
		Name:      c.Name,
		Value:     value,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}
