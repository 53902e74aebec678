package models

import (
	"time"
)

// Secret is a named value held by the vault
type Secret struct {
	Name        string `json:"secretName"`
	Value       string `json:"-"`
	ContentType string `json:"contentType,omitempty"`
}

// VaultStatus is derived on demand and never stored
type VaultStatus struct {
	Enabled     bool      `json:"enabled"`
	Initialized bool      `json:"initialized"`
	URL         string    `json:"vaultUrl"`
	Timestamp   time.Time `json:"timestamp"`
}

// LegacySecret is a row of the relational fallback store. Once MigratedAt is
// set the vault holds the authoritative copy.
type LegacySecret struct {
	Name        string     `json:"name" db:"name"`
	Value       string     `json:"-" db:"value"`
	ContentType string     `json:"content_type,omitempty" db:"content_type"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	MigratedAt  *time.Time `json:"migrated_at,omitempty" db:"migrated_at"`
}

// TableName returns the table name for the LegacySecret model
func (LegacySecret) TableName() string {
	return "app_secrets"
}

// IsMigrated reports whether the row has already been copied into the vault
func (s *LegacySecret) IsMigrated() bool {
	return s.MigratedAt != nil
}

// MigrationOutcome is the per-secret result of a migration run
type MigrationOutcome string

const (
	MigrationMigrated       MigrationOutcome = "migrated"
	MigrationAlreadyPresent MigrationOutcome = "already_present"
	MigrationFailed         MigrationOutcome = "failed"
)

// Migration sources
const (
	MigrationSourceDatabase = "database"
	MigrationSourceEnv      = "env"
)

// MigrationResult records what happened to one secret
type MigrationResult struct {
	Name    string           `json:"secretName"`
	Source  string           `json:"source"`
	Outcome MigrationOutcome `json:"outcome"`
	Error   string           `json:"error,omitempty"`
}

// MigrationReport summarises a migration run. A report with Failed > 0 is a
// partial failure, not an error.
type MigrationReport struct {
	Total          int               `json:"total"`
	Migrated       int               `json:"migrated"`
	AlreadyPresent int               `json:"alreadyPresent"`
	Failed         int               `json:"failed"`
	Results        []MigrationResult `json:"results"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     time.Time         `json:"finishedAt"`
}

// NewMigrationReport creates an empty report stamped with the start time
func NewMigrationReport(now time.Time) *MigrationReport {
	return &MigrationReport{
		Results:   []MigrationResult{},
		StartedAt: now,
	}
}

// Record appends a result and updates the counters
func (r *MigrationReport) Record(result MigrationResult) {
	r.Results = append(r.Results, result)
	r.Total++
	switch result.Outcome {
	case MigrationMigrated:
		r.Migrated++
	case MigrationAlreadyPresent:
		r.AlreadyPresent++
	case MigrationFailed:
		r.Failed++
	}
}

// PartialFailure reports whether at least one secret failed to migrate
func (r *MigrationReport) PartialFailure() bool {
	return r.Failed > 0
}
