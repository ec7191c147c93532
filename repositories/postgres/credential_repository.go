package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

// CredentialRepository implements the repositories.CredentialRepository interface
type CredentialRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB, logger *zap.Logger) repositories.CredentialRepository {
	return &CredentialRepository{
		db:     db,
		logger: logger,
	}
}

// Put inserts a credential or replaces the encrypted material of an existing one.
// Replacing always stores a fresh salt/iv/tag set produced by a new encryption.
func (r *CredentialRepository) Put(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (id, tenant_id, name, ciphertext, iv, auth_tag, salt, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, name)
		DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			iv = EXCLUDED.iv,
			auth_tag = EXCLUDED.auth_tag,
			salt = EXCLUDED.salt,
			updated_at = EXCLUDED.updated_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		cred.ID,
		cred.TenantID,
		cred.Name,
		cred.Secret.Ciphertext,
		cred.Secret.IV,
		cred.Secret.AuthTag,
		cred.Secret.Salt,
		cred.CreatedBy,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	r.logger.Debug("credential stored",
		zap.String("tenant_id", cred.TenantID.String()),
		zap.String("name", cred.Name))
	return nil
}

// Get retrieves a credential by tenant and name
func (r *CredentialRepository) Get(ctx context.Context, tenantID uuid.UUID, name string) (*models.Credential, error) {
	query := `
		SELECT id, tenant_id, name, ciphertext, iv, auth_tag, salt, created_by, created_at, updated_at
		FROM credentials
		WHERE tenant_id = $1 AND name = $2
	`

	cred := &models.Credential{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, tenantID, name).Scan(
		&cred.ID,
		&cred.TenantID,
		&cred.Name,
		&cred.Secret.Ciphertext,
		&cred.Secret.IV,
		&cred.Secret.AuthTag,
		&cred.Secret.Salt,
		&cred.CreatedBy,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", name, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// List retrieves credential metadata for a tenant
func (r *CredentialRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Credential, error) {
	query := `
		SELECT id, tenant_id, name, created_by, created_at, updated_at
		FROM credentials
		WHERE tenant_id = $1
		ORDER BY name
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred := &models.Credential{}
		if err := rows.Scan(&cred.ID, &cred.TenantID, &cred.Name, &cred.CreatedBy, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// Delete removes a credential
func (r *CredentialRepository) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	query := `DELETE FROM credentials WHERE tenant_id = $1 AND name = $2`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, tenantID, name)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credential %s: %w", name, repositories.ErrNotFound)
	}

	r.logger.Debug("credential deleted", zap.String("tenant_id", tenantID.String()), zap.String("name", name))
	return nil
}
