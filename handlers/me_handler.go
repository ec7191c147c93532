package handlers

import (
	"net/http"

	"github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// MeResponse describes the caller as seen by the authorization pipeline
type MeResponse struct {
	Authenticated   bool              `json:"authenticated"`
	Principal       *models.Principal `json:"principal,omitempty"`
	Tenant          *models.Tenant    `json:"tenant,omitempty"`
	TenantRole      models.TenantRole `json:"tenant_role,omitempty"`
	TenantSource    string            `json:"tenant_source,omitempty"`
	DevelopmentMode bool              `json:"development_mode"`
}

// MeHandler serves the caller introspection endpoint
type MeHandler struct {
	logger *zap.Logger
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

// HandleMe handles GET /api/v1/me
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	rc := middleware.GetRequestContext(r.Context())
	if rc == nil {
		h.logger.Error("me handler reached without request context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	response := MeResponse{
		Tenant:          rc.Tenant(),
		TenantRole:      rc.TenantRole(),
		TenantSource:    string(rc.TenantSource()),
		DevelopmentMode: rc.DevelopmentMode(),
	}
	if principal := rc.Principal(); !principal.IsAnonymous() {
		response.Authenticated = true
		response.Principal = &principal
	}

	_ = utils.WriteOK(w, response)
}
