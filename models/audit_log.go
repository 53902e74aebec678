package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionSecretCreated    AuditAction = "secret_created"
	AuditActionSecretUpdated    AuditAction = "secret_updated"
	AuditActionSecretDeleted    AuditAction = "secret_deleted"
	AuditActionVaultInitialized AuditAction = "vault_initialized"
	AuditActionMigrationRun     AuditAction = "migration_run"
	AuditActionTokenRefreshed   AuditAction = "token_refreshed"
)

// AuditOutcome is the result of an audited action
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// Audited resource types
const (
	AuditResourceSecret = "secret"
	AuditResourceVault  = "vault"
	AuditResourceToken  = "token"
)

// AuditLog represents an audit trail entry. Secret values are never recorded.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ActorID      string          `json:"actor_id" db:"actor_id"`
	ActorEmail   string          `json:"actor_email" db:"actor_email"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // secret, vault, token
	ResourceName string          `json:"resource_name" db:"resource_name"`
	Outcome      AuditOutcome    `json:"outcome" db:"outcome"`
	Details      json.RawMessage `json:"details" db:"details"`
	RequestID    string          `json:"request_id" db:"request_id"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new successful AuditLog entry
func NewAuditLog(action AuditAction, resourceType, resourceName string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceName: resourceName,
		Outcome:      AuditOutcomeSuccess,
		Timestamp:    time.Now(),
	}
}

// WithActor sets the acting identity
func (a *AuditLog) WithActor(identity *Identity) *AuditLog {
	if identity != nil {
		a.ActorID = identity.ID
		a.ActorEmail = identity.Email
	}
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}

// WithError marks the entry failed
func (a *AuditLog) WithError(err error) *AuditLog {
	if err != nil {
		msg := err.Error()
		a.ErrorMessage = &msg
		a.Outcome = AuditOutcomeFailure
	}
	return a
}
