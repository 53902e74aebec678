package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/upb/authvault/models"
)

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

// UserRepository reads accounts and workspace memberships.
// Lookups that find nothing return shared.ErrUserNotFound.
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email (case-insensitive)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetLatestByRole retrieves the most recently created user with the role
	GetLatestByRole(ctx context.Context, role models.Role) (*models.User, error)

	// CountMemberships counts the workspaces a user belongs to
	CountMemberships(ctx context.Context, userID uuid.UUID) (int, error)

	// GetLatestAssignedMember retrieves the user most recently added to any workspace
	GetLatestAssignedMember(ctx context.Context) (*models.User, error)
}

// LegacySecretRepository handles the relational fallback secret store
type LegacySecretRepository interface {
	// ListUnmigrated returns rows not yet copied into the vault, ordered by name
	ListUnmigrated(ctx context.Context) ([]*models.LegacySecret, error)

	// MarkMigrated stamps migrated_at. It locks the row, so it must run inside
	// the transaction that performs the vault write. Returns false when another
	// run already stamped the row.
	MarkMigrated(ctx context.Context, name string) (bool, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) LegacySecretRepository
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByResource retrieves the most recent entries for a resource
	ListByResource(ctx context.Context, resourceType, resourceName string, limit int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	LegacySecrets LegacySecretRepository
	AuditLogs     AuditRepository
}
