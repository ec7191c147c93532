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

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, display_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %v: %w", arg, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
