package models

import (
	"time"

	"github.com/google/uuid"
)

// EncryptedSecret is the at-rest form of a protected value.
// All four fields are required to decrypt; none of them is secret on its own.
type EncryptedSecret struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"authTag"`
	Salt       []byte `json:"salt"`
}

// Credential is a named secret stored for a tenant
type Credential struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	TenantID  uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	Name      string          `json:"name" db:"name"`
	Secret    EncryptedSecret `json:"-"`
	CreatedBy string          `json:"created_by" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Credential model
func (Credential) TableName() string {
	return "credentials"
}

// NewCredential creates a new Credential instance
func NewCredential(tenantID uuid.UUID, name string, secret EncryptedSecret, createdBy string) *Credential {
	now := time.Now()
	return &Credential{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Secret:    secret,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
