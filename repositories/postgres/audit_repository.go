package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
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
			id, actor_id, actor_email, action, resource_type, resource_name,
			outcome, details, request_id, error_message, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.ActorEmail,
		string(log.Action),
		log.ResourceType,
		log.ResourceName,
		string(log.Outcome),
		details,
		log.RequestID,
		log.ErrorMessage,
		log.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListByResource retrieves the newest entries for one resource
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceName string, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, COALESCE(actor_id, ''), COALESCE(actor_email, ''), action, resource_type,
		       COALESCE(resource_name, ''), outcome, details, COALESCE(request_id, ''),
		       error_message, timestamp
		FROM audit_logs
		WHERE resource_type = $1 AND resource_name = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, resourceType, resourceName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log := &models.AuditLog{}
		var details []byte
		if err := rows.Scan(
			&log.ID,
			&log.ActorID,
			&log.ActorEmail,
			&log.Action,
			&log.ResourceType,
			&log.ResourceName,
			&log.Outcome,
			&details,
			&log.RequestID,
			&log.ErrorMessage,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Details = details
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return logs, nil
}
