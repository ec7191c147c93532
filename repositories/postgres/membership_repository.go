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

// MembershipRepository implements the repositories.MembershipRepository interface
type MembershipRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB, logger *zap.Logger) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the membership of a user in a tenant
func (r *MembershipRepository) Get(ctx context.Context, tenantID uuid.UUID, userID string) (*models.Membership, error) {
	query := `
		SELECT tenant_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
	`

	m := &models.Membership{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, tenantID, userID).Scan(
		&m.TenantID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %s/%s: %w", tenantID, userID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// Upsert creates a membership or updates its role
func (r *MembershipRepository) Upsert(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (tenant_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		m.TenantID,
		m.UserID,
		m.Role,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}

	r.logger.Debug("membership upserted",
		zap.String("tenant_id", m.TenantID.String()),
		zap.String("user_id", m.UserID),
		zap.String("role", string(m.Role)))
	return nil
}

// ListByUser retrieves all memberships of a user
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	query := `
		SELECT tenant_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.TenantID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return memberships, nil
}

// Delete removes a membership
func (r *MembershipRepository) Delete(ctx context.Context, tenantID uuid.UUID, userID string) error {
	query := `DELETE FROM memberships WHERE tenant_id = $1 AND user_id = $2`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("membership %s/%s: %w", tenantID, userID, repositories.ErrNotFound)
	}

	return nil
}
