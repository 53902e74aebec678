package secrets

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/internal/vault"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
)

// Messages stored in migration reports. They never carry values or vault URLs.
const (
	msgLegacyUnavailable = "legacy secret store unavailable"
	msgDecryptFailed     = "legacy value could not be decrypted"
	msgNotInEnvironment  = "not set in environment"
	msgVaultFailed       = "vault request failed"
	msgInvalidName       = "invalid secret name"
)

// MigrateToVault copies every legacy secret that the vault does not hold yet.
// Secrets already in the vault are left untouched, so re-running is a no-op.
// Per-secret failures land in the report; they never abort the batch.
// Concurrent callers share the in-flight run and its report. Requires an
// admin actor.
func (b *Broker) MigrateToVault(ctx context.Context, actor *models.Identity) (*models.MigrationReport, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := b.requireVault(ctx); err != nil {
		return nil, err
	}

	v, err, joined := b.flights.Do(flightMigrate, func() (interface{}, error) {
		// Detached so the run completes for every waiter
		runCtx := context.WithoutCancel(ctx)
		report := b.runMigration(runCtx)
		if b.auditor != nil {
			if err := b.auditor.LogMigration(actor, report, shared.RequestID(ctx), nil); err != nil {
				b.logger.Warn("failed to queue audit event", zap.String("action", string(models.AuditActionMigrationRun)), zap.Error(err))
			}
		}
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		b.logger.Info("joined in-flight migration", zap.String("actor_email", actor.Email))
	}
	return v.(*models.MigrationReport), nil
}

func (b *Broker) runMigration(ctx context.Context) *models.MigrationReport {
	report := models.NewMigrationReport(b.now())
	seen := make(map[string]struct{})

	b.logger.Info("secret migration started")

	if b.legacy != nil {
		rows, err := b.legacy.ListUnmigrated(ctx)
		if err != nil {
			b.logger.Error("failed to list legacy secrets", zap.Error(err))
			b.record(report, models.MigrationResult{
				Source:  models.MigrationSourceDatabase,
				Outcome: models.MigrationFailed,
				Error:   msgLegacyUnavailable,
			})
		}
		for _, row := range rows {
			seen[row.Name] = struct{}{}
			b.record(report, b.migrateLegacyRow(ctx, row))
		}
	}

	for _, name := range b.envSecrets {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		b.record(report, b.migrateEnvSecret(ctx, name))
	}

	report.FinishedAt = b.now()
	b.logger.Info("secret migration finished",
		zap.Int("total", report.Total),
		zap.Int("migrated", report.Migrated),
		zap.Int("already_present", report.AlreadyPresent),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

func (b *Broker) record(report *models.MigrationReport, result models.MigrationResult) {
	report.Record(result)
	b.metrics.RecordMigration(string(result.Outcome))
	if result.Outcome == models.MigrationFailed {
		b.logger.Warn("secret not migrated",
			zap.String("secret_name", result.Name),
			zap.String("source", result.Source),
			zap.String("reason", result.Error))
	}
}

// migrateLegacyRow stamps the row and writes the vault in one transaction. A
// failed vault write rolls the stamp back; a row stamped by a concurrent run
// counts as already present.
func (b *Broker) migrateLegacyRow(ctx context.Context, row *models.LegacySecret) models.MigrationResult {
	result := models.MigrationResult{Name: row.Name, Source: models.MigrationSourceDatabase}

	var outcome models.MigrationOutcome
	err := b.inTransaction(ctx, func(ctx context.Context, legacy repositories.LegacySecretRepository) error {
		stamped, err := legacy.MarkMigrated(ctx, row.Name)
		if err != nil {
			return errLegacy{err}
		}
		if !stamped {
			outcome = models.MigrationAlreadyPresent
			return nil
		}

		value, err := b.decryptor.Decrypt(row.Value)
		if err != nil {
			return errDecrypt{err}
		}
		outcome, err = b.copyIfAbsent(ctx, row.Name, value, row.ContentType)
		return err
	})
	if err != nil {
		result.Outcome = models.MigrationFailed
		result.Error = b.migrationFailure(row.Name, err)
		return result
	}

	result.Outcome = outcome
	return result
}

func (b *Broker) migrateEnvSecret(ctx context.Context, name string) models.MigrationResult {
	result := models.MigrationResult{Name: name, Source: models.MigrationSourceEnv}

	outcome, err := b.copyIfAbsentFrom(ctx, name, func() (*models.Secret, error) {
		return b.local.Get(name)
	})
	if err != nil {
		result.Outcome = models.MigrationFailed
		result.Error = b.migrationFailure(name, err)
		return result
	}
	result.Outcome = outcome
	return result
}

func (b *Broker) copyIfAbsent(ctx context.Context, name, value, contentType string) (models.MigrationOutcome, error) {
	return b.copyIfAbsentFrom(ctx, name, func() (*models.Secret, error) {
		return &models.Secret{Name: name, Value: value, ContentType: contentType}, nil
	})
}

// copyIfAbsentFrom checks the vault first so the source is only read when a
// write will follow. The write itself is a conditional create, so a value
// stored by an admin after the check is never overwritten.
func (b *Broker) copyIfAbsentFrom(ctx context.Context, name string, source func() (*models.Secret, error)) (models.MigrationOutcome, error) {
	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	exists, err := b.client.SecretExists(opCtx, name)
	b.metrics.RecordVaultOperation("exists", started, err)
	if err != nil {
		return "", err
	}
	if exists {
		return models.MigrationAlreadyPresent, nil
	}

	secret, err := source()
	if err != nil {
		return "", err
	}

	started = time.Now()
	err = b.client.CreateSecret(opCtx, name, secret.Value, secret.ContentType)
	if errors.Is(err, vault.ErrAlreadyExists) {
		b.metrics.RecordVaultOperation("migrate", started, nil)
		return models.MigrationAlreadyPresent, nil
	}
	b.metrics.RecordVaultOperation("migrate", started, err)
	if err != nil {
		return "", err
	}
	b.cache.Invalidate(name)
	return models.MigrationMigrated, nil
}

func (b *Broker) inTransaction(ctx context.Context, fn func(context.Context, repositories.LegacySecretRepository) error) error {
	if b.txMgr == nil {
		return fn(ctx, b.legacy)
	}
	return b.txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		return fn(ctx, b.legacy.WithTx(tx))
	})
}

type errLegacy struct{ error }

func (e errLegacy) Unwrap() error { return e.error }

type errDecrypt struct{ error }

func (e errDecrypt) Unwrap() error { return e.error }

// migrationFailure logs the full cause and returns a report-safe message
func (b *Broker) migrationFailure(name string, err error) string {
	b.logger.Error("secret migration failed", zap.String("secret_name", name), zap.Error(err))

	var legacyErr errLegacy
	var decryptErr errDecrypt
	switch {
	case errors.As(err, &legacyErr):
		return msgLegacyUnavailable
	case errors.As(err, &decryptErr):
		return msgDecryptFailed
	case errors.Is(err, shared.ErrSecretNotFound):
		return msgNotInEnvironment
	case errors.Is(err, shared.ErrInvalidInput):
		return msgInvalidName
	default:
		return msgVaultFailed
	}
}
