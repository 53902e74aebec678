package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
)

// LegacySecretRepository implements repositories.LegacySecretRepository over app_secrets
type LegacySecretRepository struct {
	db     *DB
	tx     *sql.Tx
	logger *zap.Logger
}

// NewLegacySecretRepository creates a new legacy secret repository
func NewLegacySecretRepository(db *DB, logger *zap.Logger) repositories.LegacySecretRepository {
	return &LegacySecretRepository{
		db:     db,
		logger: logger,
	}
}

// ListUnmigrated returns rows whose migrated_at is still NULL
func (r *LegacySecretRepository) ListUnmigrated(ctx context.Context) ([]*models.LegacySecret, error) {
	query := `
		SELECT name, value, COALESCE(content_type, ''), created_at, migrated_at
		FROM app_secrets
		WHERE migrated_at IS NULL
		ORDER BY name
	`

	rows, err := executorFor(ctx, r.db, r.tx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy secrets: %w", err)
	}
	defer rows.Close()

	secrets := make([]*models.LegacySecret, 0)
	for rows.Next() {
		s := &models.LegacySecret{}
		if err := rows.Scan(&s.Name, &s.Value, &s.ContentType, &s.CreatedAt, &s.MigratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan legacy secret: %w", err)
		}
		secrets = append(secrets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate legacy secrets: %w", err)
	}

	return secrets, nil
}

// MarkMigrated locks the row and stamps migrated_at. Returns false when the
// row is missing or a concurrent run already stamped it.
func (r *LegacySecretRepository) MarkMigrated(ctx context.Context, name string) (bool, error) {
	exec := executorFor(ctx, r.db, r.tx)

	var migratedAt sql.NullTime
	err := exec.QueryRowContext(ctx,
		`SELECT migrated_at FROM app_secrets WHERE name = $1 FOR UPDATE`, name,
	).Scan(&migratedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock legacy secret: %w", err)
	}
	if migratedAt.Valid {
		return false, nil
	}

	if _, err := exec.ExecContext(ctx,
		`UPDATE app_secrets SET migrated_at = CURRENT_TIMESTAMP WHERE name = $1`, name,
	); err != nil {
		return false, fmt.Errorf("failed to mark legacy secret migrated: %w", err)
	}

	r.logger.Debug("legacy secret marked migrated", zap.String("secret_name", name))
	return true, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *LegacySecretRepository) WithTx(tx repositories.Transaction) repositories.LegacySecretRepository {
	return &LegacySecretRepository{
		db:     r.db,
		tx:     sqlTx(tx),
		logger: r.logger,
	}
}
