// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
)

// TenantRepository is a mock implementation of repositories.TenantRepository
type TenantRepository struct {
	mock.Mock
}

func (m *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *TenantRepository) FindByIdentifier(ctx context.Context, identifier string) ([]*models.Tenant, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tenant), args.Error(1)
}

func (m *TenantRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MembershipRepository is a mock implementation of repositories.MembershipRepository
type MembershipRepository struct {
	mock.Mock
}

func (m *MembershipRepository) Get(ctx context.Context, tenantID uuid.UUID, userID string) (*models.Membership, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *MembershipRepository) Upsert(ctx context.Context, membership *models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *MembershipRepository) Delete(ctx context.Context, tenantID uuid.UUID, userID string) error {
	args := m.Called(ctx, tenantID, userID)
	return args.Error(0)
}

// UserRepository is a mock implementation of repositories.UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// CredentialRepository is a mock implementation of repositories.CredentialRepository
type CredentialRepository struct {
	mock.Mock
}

func (m *CredentialRepository) Put(ctx context.Context, cred *models.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *CredentialRepository) Get(ctx context.Context, tenantID uuid.UUID, name string) (*models.Credential, error) {
	args := m.Called(ctx, tenantID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *CredentialRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Credential, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Credential), args.Error(1)
}

func (m *CredentialRepository) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	args := m.Called(ctx, tenantID, name)
	return args.Error(0)
}

// AuditRepository is a mock implementation of repositories.AuditRepository.
// Inserted entries are kept for inspection by asynchronous tests.
type AuditRepository struct {
	mock.Mock

	mu       sync.Mutex
	inserted []*models.AuditLog
}

func (m *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.inserted = append(m.inserted, log)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

// Inserted returns the entries stored so far
func (m *AuditRepository) Inserted() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.inserted...)
}

// TransactionManager is a mock implementation of repositories.TransactionManager.
// InTransaction runs fn directly unless an error is configured.
type TransactionManager struct {
	mock.Mock
}

func (m *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, nil)
}
