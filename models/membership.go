package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantRole represents a principal's role within a single tenant
type TenantRole string

const (
	TenantRoleOwner  TenantRole = "OWNER"
	TenantRoleAdmin  TenantRole = "ADMIN"
	TenantRoleMember TenantRole = "MEMBER"
	TenantRoleViewer TenantRole = "VIEWER"
)

// Valid returns true if r is a known tenant role
func (r TenantRole) Valid() bool {
	switch r {
	case TenantRoleOwner, TenantRoleAdmin, TenantRoleMember, TenantRoleViewer:
		return true
	}
	return false
}

// Membership links a principal to a tenant. (TenantID, UserID) is unique.
type Membership struct {
	TenantID  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	UserID    string     `json:"user_id" db:"user_id"` // Principal.ID
	Role      TenantRole `json:"role" db:"role"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Membership model
func (Membership) TableName() string {
	return "memberships"
}

// NewMembership creates a new Membership instance
func NewMembership(tenantID uuid.UUID, userID string, role TenantRole) *Membership {
	now := time.Now()
	return &Membership{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
