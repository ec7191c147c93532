package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the billing state of a tenant
type SubscriptionStatus string

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Tenant represents an isolated customer namespace
type Tenant struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Slug               string             `json:"slug" db:"slug"` // URL-friendly identifier, also used as subdomain
	Name               string             `json:"name" db:"name"`
	IsActive           bool               `json:"is_active" db:"is_active"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new active Tenant on a trial subscription
func NewTenant(name, slug string) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:                 uuid.New(),
		Slug:               slug,
		Name:               name,
		IsActive:           true,
		SubscriptionStatus: SubscriptionTrial,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Matches reports whether the identifier equals the tenant's id or slug
func (t *Tenant) Matches(identifier string) bool {
	return t.ID.String() == identifier || t.Slug == identifier
}
