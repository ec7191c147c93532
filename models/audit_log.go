package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionCredentialStored       AuditAction = "credential_stored"
	AuditActionCredentialRead         AuditAction = "credential_read"
	AuditActionCredentialDeleted      AuditAction = "credential_deleted"
	AuditActionCredentialDecryptError AuditAction = "credential_decrypt_failed"
	AuditActionTenantProvisioned      AuditAction = "tenant_provisioned"
	AuditActionTenantActivated        AuditAction = "tenant_activated"
	AuditActionTenantDeactivated      AuditAction = "tenant_deactivated"
)

// AuditLog represents an audit trail entry. Entries never carry secret values.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TenantID     uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ActorID      string          `json:"actor_id,omitempty" db:"actor_id"` // Principal.ID, empty for anonymous
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // credential, tenant
	ResourceName string          `json:"resource_name,omitempty" db:"resource_name"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(tenantID uuid.UUID, action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now(),
	}
}

// WithActor sets the acting principal
func (a *AuditLog) WithActor(actorID string) *AuditLog {
	a.ActorID = actorID
	return a
}

// WithResource sets the resource name
func (a *AuditLog) WithResource(name string) *AuditLog {
	a.ResourceName = name
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
