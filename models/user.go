package models

import (
	"time"

	"github.com/google/uuid"
)

// GlobalRole represents a user's platform-wide role
type GlobalRole string

const (
	RoleAdmin  GlobalRole = "ADMIN"
	RoleUser   GlobalRole = "USER"
	RoleViewer GlobalRole = "VIEWER"
)

// Valid returns true if r is a known global role
func (r GlobalRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

// User represents a persisted platform user.
// Verified callers are never written here; only the development fallback identity is.
type User struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	DisplayName string     `json:"display_name" db:"display_name"`
	Role        GlobalRole `json:"role" db:"role"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, displayName string, role GlobalRole) *User {
	now := time.Now()
	return &User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
