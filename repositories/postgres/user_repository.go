package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
)

const userColumns = `u.id, u.email, u.role, u.created_at, u.updated_at`

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

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	return r.getOne(ctx, query, fmt.Sprintf("id %s", id), id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE LOWER(u.email) = $1`
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, query, fmt.Sprintf("email %s", email), email)
}

// GetLatestByRole retrieves the most recently created user with the given role
func (r *UserRepository) GetLatestByRole(ctx context.Context, role models.Role) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.role = $1
		ORDER BY u.created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, fmt.Sprintf("role %s", role), string(role))
}

// CountMemberships counts the workspaces a user belongs to
func (r *UserRepository) CountMemberships(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM workspace_members WHERE user_id = $1`

	var count int
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return count, nil
}

// GetLatestAssignedMember retrieves the user most recently added to any workspace
func (r *UserRepository) GetLatestAssignedMember(ctx context.Context) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM workspace_members wm
		JOIN users u ON u.id = wm.user_id
		ORDER BY wm.assigned_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, "any workspace member")
}

func (r *UserRepository) getOne(ctx context.Context, query, lookup string, args ...interface{}) (*models.User, error) {
	user := &models.User{}
	var role string

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, lookup)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Unknown roles are kept verbatim; callers reject them via models.ParseRole.
	user.Role = models.Role(role)
	if !user.Role.Valid() {
		r.logger.Warn("user row has unknown role",
			zap.String("user_id", user.ID.String()),
			zap.String("role", role))
	}
	return user, nil
}
