package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/authvault/config"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories/postgres"
	"github.com/upb/authvault/services/audit"
)

var testAdmin = &models.Identity{
	ID:    "5f0c7a43-0b1e-4d2f-9a51-2d7c3b8e9f10",
	Email: "admin@example.com",
	Role:  models.RoleAdmin,
}

func TestBuildWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	logger := zaptest.NewLogger(t)

	deps, err := Build(ctx, cfg, logger, nil)
	require.NoError(t, err)
	require.NotNil(t, deps)
	defer deps.Close(ctx)

	assert.Nil(t, deps.DB)
	assert.Nil(t, deps.AuditService)
	assert.NotNil(t, deps.TokenCodec)
	assert.NotNil(t, deps.Metrics)
	assert.NotNil(t, deps.AuthMiddleware)
	assert.NotNil(t, deps.AdminLimiter)
	assert.NotNil(t, deps.AuthHandler)
	assert.NotNil(t, deps.VaultHandler)
	assert.NotNil(t, deps.HealthHandler)

	t.Run("memory driver is configured and initialized at startup", func(t *testing.T) {
		assert.True(t, deps.Broker.IsConfigured())
		assert.True(t, deps.Broker.IsEnabled())

		status := deps.Broker.Status(ctx)
		assert.Equal(t, memoryVaultURL, status.URL)
	})

	t.Run("broker round trip through the memory vault", func(t *testing.T) {
		require.NoError(t, deps.Broker.Set(ctx, testAdmin, "db-password", "s3cret", "text/plain"))

		secret, err := deps.Broker.Get(ctx, "db-password")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", secret.Value)
	})

	t.Run("bypass stays off by default", func(t *testing.T) {
		assert.False(t, deps.Resolver.BypassEnabled())
	})
}

func TestBuildBypass(t *testing.T) {
	ctx := context.Background()

	t.Run("enabled in a non-production environment", func(t *testing.T) {
		cfg := testConfig()
		cfg.Bypass.Enabled = true
		cfg.Bypass.AdminEmails = []string{"dev@example.com"}

		deps, err := Build(ctx, cfg, zaptest.NewLogger(t), nil)
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.True(t, deps.Resolver.BypassEnabled())
	})

	t.Run("never enabled in production", func(t *testing.T) {
		cfg := testConfig()
		cfg.Environment = "production"
		cfg.Bypass.Enabled = true

		deps, err := Build(ctx, cfg, zaptest.NewLogger(t), nil)
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.False(t, deps.Resolver.BypassEnabled())
	})
}

func TestBuildWithoutVault(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Vault.Driver = "hashicorp"
	cfg.Vault.URL = ""
	cfg.Observability.MetricsEnabled = false

	deps, err := Build(ctx, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer deps.Close(ctx)

	assert.Nil(t, deps.Metrics)
	assert.False(t, deps.Broker.IsConfigured())
	assert.False(t, deps.Broker.IsEnabled())
}

func TestBuildRejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"

	deps, err := Build(context.Background(), cfg, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize auth")
}

func TestBuildRejectsInvalidAgeIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.Legacy.AgeIdentity = "not-an-age-identity"

	deps, err := Build(context.Background(), cfg, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize secrets")
}

func TestAbandonLogsAuditStopFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	// Never started, so Stop fails
	deps := &Dependencies{
		Logger:       zap.New(core),
		AuditService: audit.NewAuditService(nil, zap.NewNop(), audit.DefaultConfig()),
	}

	deps.abandon()

	entries := logs.FilterMessage("failed to stop audit service").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["error"], "not running")
}

func TestNewDependencies(t *testing.T) {
	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		cfg.Database.Port = 1

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("successful initialization with a database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.LegacySecrets)
		assert.NotNil(t, deps.AuditLogs)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.AuditService)

		assert.NoError(t, deps.Close(ctx))
	})
}

// Test helpers

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "authvault"),
			Password:        getEnvOrDefault("DB_PASSWORD", "authvault"),
			Database:        getEnvOrDefault("DB_NAME", "authvault_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: config.AuthConfig{
			JWTSecret: "0123456789abcdef0123456789abcdef",
			Issuer:    "authvault-test",
			TokenTTL:  time.Hour,
		},
		Vault: config.VaultConfig{
			Driver:     "memory",
			MountPath:  "secret",
			Timeout:    time.Second,
			CacheTTL:   time.Minute,
			CacheSize:  16,
			AdminRPS:   100,
			AdminBurst: 100,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		return false
	}
	db, err := postgres.NewDB(cfg.Database, zaptest.NewLogger(t))
	if err != nil {
		return false
	}
	_ = db.Close()
	return true
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
