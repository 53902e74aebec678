package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService persists audit events asynchronously
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending events and waits for the workers, up to timeout
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	// No more events will be accepted
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. Events are dropped when the
// buffer is full.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("resource_name", event.Log.ResourceName))
		return fmt.Errorf("audit event buffer full")
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("resource_name", event.Log.ResourceName))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent inserts under the service context, so a timed out Stop aborts
// inserts still in flight
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// LogSecretEvent records a vault mutation by actor. The secret value is never
// part of the entry.
func (s *AuditService) LogSecretEvent(actor *models.Identity, action models.AuditAction, secretName, requestID string, opErr error) error {
	log := models.NewAuditLog(action, models.AuditResourceSecret, secretName).
		WithActor(actor).
		WithRequest(requestID).
		WithError(opErr)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogVaultInitialized records a (re)initialization of the vault client
func (s *AuditService) LogVaultInitialized(actor *models.Identity, vaultURL, requestID string, opErr error) error {
	log := models.NewAuditLog(models.AuditActionVaultInitialized, models.AuditResourceVault, vaultURL).
		WithActor(actor).
		WithRequest(requestID).
		WithError(opErr)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogMigration records a migration run with its counters
func (s *AuditService) LogMigration(actor *models.Identity, report *models.MigrationReport, requestID string, opErr error) error {
	log := models.NewAuditLog(models.AuditActionMigrationRun, models.AuditResourceVault, "migration").
		WithActor(actor).
		WithRequest(requestID).
		WithError(opErr)

	if report != nil {
		log.WithDetails(map[string]interface{}{
			"total":           report.Total,
			"migrated":        report.Migrated,
			"already_present": report.AlreadyPresent,
			"failed":          report.Failed,
		})
	}

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogTokenRefreshed records a token re-issue for the identity
func (s *AuditService) LogTokenRefreshed(actor *models.Identity, requestID string) error {
	log := models.NewAuditLog(models.AuditActionTokenRefreshed, models.AuditResourceToken, actor.ID).
		WithActor(actor).
		WithRequest(requestID)

	return s.LogEvent(&AuditEvent{Log: log})
}
