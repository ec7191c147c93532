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

const tenantColumns = `id, slug, name, is_active, subscription_status, created_at, updated_at`

// TenantRepository implements the repositories.TenantRepository interface
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, slug, name, is_active, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		tenant.ID,
		tenant.Slug,
		tenant.Name,
		tenant.IsActive,
		tenant.SubscriptionStatus,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant slug %q: %w", tenant.Slug, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	r.logger.Debug("tenant created", zap.String("id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	tenant, err := scanTenant(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// FindByIdentifier returns all tenants whose id or slug equals identifier.
// The id comparison is done on the text form so non-UUID identifiers do not error.
func (r *TenantRepository) FindByIdentifier(ctx context.Context, identifier string) ([]*models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id::text = $1 OR slug = $1
		LIMIT 2
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// SetActive toggles tenant activation
func (r *TenantRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE tenants SET is_active = $2, updated_at = NOW() WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("tenant activation changed", zap.String("id", id.String()), zap.Bool("active", active))
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := row.Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.Name,
		&tenant.IsActive,
		&tenant.SubscriptionStatus,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tenant, nil
}
