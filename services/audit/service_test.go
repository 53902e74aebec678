package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/authvault/models"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, log)
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByResource(ctx context.Context, resourceType, resourceName string, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, resourceType, resourceName, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

var admin = &models.Identity{ID: "00000000-0000-0000-0000-000000000001", Email: "admin@example.com", Role: models.RoleAdmin}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Stopping twice or logging after stop fails instead of panicking
	assert.Error(t, service.Stop(time.Second))
	assert.Error(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionSecretCreated, "secret", "x")}))
}

func TestAuditService_LogEventBeforeStart(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())
	err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionSecretCreated, "secret", "x")})
	assert.Error(t, err)
}

func TestAuditService_StopDrainsPendingEvents(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 3})
	require.NoError(t, service.Start())

	eventCount := 50
	for i := 0; i < eventCount; i++ {
		log := models.NewAuditLog(models.AuditActionSecretUpdated, "secret", "openai-api-key")
		require.NoError(t, service.LogEvent(&AuditEvent{Log: log}))
	}

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), eventCount)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				assert.NoError(t, service.LogEvent(&AuditEvent{
					Log: models.NewAuditLog(models.AuditActionSecretCreated, "secret", "k"),
				}))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), goroutineCount*eventsPerGoroutine)
}

func TestAuditService_LogSecretEvent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())

	require.NoError(t, service.LogSecretEvent(admin, models.AuditActionSecretCreated, "openai-api-key", "req-1", nil))
	require.NoError(t, service.LogSecretEvent(admin, models.AuditActionSecretDeleted, "db-password", "req-2", errors.New("vault request failed")))
	require.NoError(t, service.Stop(5*time.Second))

	logs := mockRepo.GetInsertedLogs()
	require.Len(t, logs, 2)

	byName := map[string]*models.AuditLog{}
	for _, l := range logs {
		byName[l.ResourceName] = l
	}

	created := byName["openai-api-key"]
	require.NotNil(t, created)
	assert.Equal(t, models.AuditActionSecretCreated, created.Action)
	assert.Equal(t, "admin@example.com", created.ActorEmail)
	assert.Equal(t, models.AuditOutcomeSuccess, created.Outcome)
	assert.Equal(t, "req-1", created.RequestID)

	deleted := byName["db-password"]
	require.NotNil(t, deleted)
	assert.Equal(t, models.AuditOutcomeFailure, deleted.Outcome)
	require.NotNil(t, deleted.ErrorMessage)
}

func TestAuditService_LogMigration(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())

	report := models.NewMigrationReport(time.Now())
	report.Record(models.MigrationResult{Name: "a", Outcome: models.MigrationMigrated})
	report.Record(models.MigrationResult{Name: "b", Outcome: models.MigrationFailed, Error: "boom"})

	require.NoError(t, service.LogMigration(admin, report, "req-3", nil))
	require.NoError(t, service.Stop(5*time.Second))

	logs := mockRepo.GetInsertedLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionMigrationRun, logs[0].Action)

	var details map[string]int
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	assert.Equal(t, 2, details["total"])
	assert.Equal(t, 1, details["failed"])
}

func TestAuditService_RepositoryErrorDoesNotStopWorkers(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogTokenRefreshed(admin, "req-4"))
	require.NoError(t, service.LogVaultInitialized(admin, "https://vault.internal:8200", "req-5", nil))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 2)
}

func TestAuditService_BufferFull(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 2, WorkerCount: 1})
	require.NoError(t, service.Start())

	failures := 0
	for i := 0; i < 10; i++ {
		if err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionSecretCreated, "secret", "k")}); err != nil {
			failures++
		}
	}
	assert.Greater(t, failures, 0)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_StopTimeoutCancelsInFlightInsert(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	entered := make(chan struct{})
	cancelled := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(context.Canceled).Run(func(args mock.Arguments) {
		close(entered)
		<-args.Get(0).(context.Context).Done()
		close(cancelled)
	}).Once()

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.LogTokenRefreshed(admin, "req-6"))
	<-entered

	assert.Error(t, service.Stop(20*time.Millisecond))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("insert was not cancelled")
	}
}
