package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/internal/secrets"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"github.com/upb/tenant-gateway/utils"
	"go.uber.org/zap"
)

// SecretCipher seals and opens tenant-scoped secrets
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext, tenantID string) (models.EncryptedSecret, error)
	Decrypt(ctx context.Context, secret models.EncryptedSecret, tenantID string) (string, error)
}

// CredentialService stores named secrets encrypted under their tenant's key
type CredentialService struct {
	credentials repositories.CredentialRepository
	cipher      SecretCipher
	logger      *zap.Logger
}

// NewCredentialService creates a new CredentialService instance
func NewCredentialService(credentials repositories.CredentialRepository, cipher SecretCipher, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		credentials: credentials,
		cipher:      cipher,
		logger:      logger,
	}
}

// Put encrypts value for tenantID and stores it under name, replacing any
// previous value.
func (s *CredentialService) Put(ctx context.Context, tenantID uuid.UUID, name, value, createdBy string) (*models.Credential, error) {
	if tenantID == uuid.Nil {
		return nil, ErrNoTenantContext
	}
	if err := utils.ValidateCredentialName(name); err != nil {
		return nil, WrapError(ErrorTypeValidation, "invalid credential name", err).WithDetail("name", name)
	}
	if value == "" {
		return nil, NewDomainError(ErrorTypeValidation, "credential value is required", nil)
	}

	secret, err := s.cipher.Encrypt(ctx, value, tenantID.String())
	if err != nil {
		return nil, WrapInternal("failed to encrypt credential", err)
	}

	cred := models.NewCredential(tenantID, name, secret, createdBy)
	if err := s.credentials.Put(ctx, cred); err != nil {
		return nil, WrapInternal("failed to store credential", err)
	}

	s.logger.Info("credential stored",
		zap.String("tenant_id", tenantID.String()),
		zap.String("name", name),
		zap.String("created_by", createdBy))

	return cred, nil
}

// Get loads and decrypts the credential stored under name
func (s *CredentialService) Get(ctx context.Context, tenantID uuid.UUID, name string) (*models.Credential, string, error) {
	if tenantID == uuid.Nil {
		return nil, "", ErrNoTenantContext
	}

	cred, err := s.credentials.Get(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, "", WrapError(ErrorTypeNotFound, "credential not found", err).WithDetail("name", name)
		}
		return nil, "", WrapInternal("failed to load credential", err)
	}

	value, err := s.cipher.Decrypt(ctx, cred.Secret, tenantID.String())
	if err != nil {
		var decErr *secrets.DecryptionError
		if errors.As(err, &decErr) {
			return nil, "", WrapError(ErrorTypeInternal, "stored secret could not be decrypted", err).
				WithDetail("correlation_id", decErr.CorrelationID)
		}
		return nil, "", WrapInternal("failed to decrypt credential", err)
	}

	return cred, value, nil
}

// List returns credential metadata for a tenant, without encrypted material
func (s *CredentialService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Credential, error) {
	if tenantID == uuid.Nil {
		return nil, ErrNoTenantContext
	}

	creds, err := s.credentials.List(ctx, tenantID)
	if err != nil {
		return nil, WrapInternal("failed to list credentials", err)
	}
	if creds == nil {
		creds = []*models.Credential{}
	}
	return creds, nil
}

// Delete removes the credential stored under name
func (s *CredentialService) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	if tenantID == uuid.Nil {
		return ErrNoTenantContext
	}

	if err := s.credentials.Delete(ctx, tenantID, name); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return WrapError(ErrorTypeNotFound, "credential not found", err).WithDetail("name", name)
		}
		return WrapInternal("failed to delete credential", err)
	}

	s.logger.Info("credential deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("name", name))
	return nil
}
