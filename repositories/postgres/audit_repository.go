package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, tenant_id, actor_id, action, resource_type, resource_name,
			details, ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	// JSONB rejects an empty byte slice; store NULL instead
	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.ActorID,
		log.Action,
		log.ResourceType,
		log.ResourceName,
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListByTenant retrieves audit logs for a tenant with pagination
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, tenant_id, actor_id, action, resource_type, resource_name,
		       details, ip_address, user_agent, request_id, timestamp
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var details []byte
		if err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.ActorID,
			&log.Action,
			&log.ResourceType,
			&log.ResourceName,
			&details,
			&log.IPAddress,
			&log.UserAgent,
			&log.RequestID,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Details = details
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}
