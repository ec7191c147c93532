package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
)

// ErrNotFound is wrapped by every repository lookup that matches no row
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is wrapped when an insert violates a unique constraint
var ErrDuplicate = errors.New("record already exists")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// TenantRepository handles tenant data operations
type TenantRepository interface {
	// Create creates a new tenant
	Create(ctx context.Context, tenant *models.Tenant) error

	// GetByID retrieves a tenant by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// FindByIdentifier returns every tenant whose id or slug equals identifier.
	// More than one result means the id and slug spaces overlap.
	FindByIdentifier(ctx context.Context, identifier string) ([]*models.Tenant, error)

	// SetActive toggles tenant activation
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// MembershipRepository handles tenant membership data operations
type MembershipRepository interface {
	// Get retrieves the membership of userID in tenantID; wraps ErrNotFound when absent
	Get(ctx context.Context, tenantID uuid.UUID, userID string) (*models.Membership, error)

	// Upsert creates a membership or updates its role
	Upsert(ctx context.Context, membership *models.Membership) error

	// ListByUser retrieves all memberships of a user
	ListByUser(ctx context.Context, userID string) ([]*models.Membership, error)

	// Delete removes a membership
	Delete(ctx context.Context, tenantID uuid.UUID, userID string) error
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user; wraps ErrDuplicate on email conflicts
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// CredentialRepository stores encrypted tenant credentials
type CredentialRepository interface {
	// Put inserts or replaces the credential identified by (TenantID, Name)
	Put(ctx context.Context, cred *models.Credential) error

	// Get retrieves a credential by tenant and name
	Get(ctx context.Context, tenantID uuid.UUID, name string) (*models.Credential, error)

	// List retrieves credential metadata for a tenant (no encrypted material)
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.Credential, error)

	// Delete removes a credential
	Delete(ctx context.Context, tenantID uuid.UUID, name string) error
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByTenant retrieves audit logs for a tenant, newest first
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Tenants     TenantRepository
	Memberships MembershipRepository
	Users       UserRepository
	Credentials CredentialRepository
	AuditLogs   AuditRepository
}
