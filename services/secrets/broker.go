// Package secrets brokers application secrets between the vault, the legacy
// relational store and process configuration.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/internal/observability"
	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/internal/vault"
	"github.com/upb/authvault/models"
	"github.com/upb/authvault/repositories"
)

const (
	defaultOperationTimeout = 10 * time.Second
	cacheCleanupInterval    = time.Minute

	flightInitialize = "initialize"
	flightMigrate    = "migrate"
)

// Config holds the broker settings derived from config.VaultConfig
type Config struct {
	Vault            vault.Config
	OperationTimeout time.Duration
	CacheTTL         time.Duration
	CacheSize        int
	EnvSecrets       []string // names migrated from the environment
}

// Auditor persists vault mutations. *audit.AuditService satisfies it.
type Auditor interface {
	LogSecretEvent(actor *models.Identity, action models.AuditAction, secretName, requestID string, opErr error) error
	LogVaultInitialized(actor *models.Identity, vaultURL, requestID string, opErr error) error
	LogMigration(actor *models.Identity, report *models.MigrationReport, requestID string, opErr error) error
}

// Deps are the collaborators of a Broker. Only Client is required.
type Deps struct {
	Client    vault.Client
	Local     *LocalSource
	Legacy    repositories.LegacySecretRepository
	TxManager repositories.TransactionManager
	Decryptor *LegacyDecryptor
	Auditor   Auditor
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Broker is the process-wide secret facade. When a vault is configured it is
// the only source; otherwise reads come from local configuration.
type Broker struct {
	client    vault.Client
	local     *LocalSource
	legacy    repositories.LegacySecretRepository
	txMgr     repositories.TransactionManager
	decryptor *LegacyDecryptor
	auditor   Auditor
	metrics   *observability.Metrics
	logger    *zap.Logger
	cache     *SecretCache

	timeout    time.Duration
	envSecrets []string

	mu         sync.RWMutex
	vaultCfg   vault.Config
	configured bool

	flights  singleflight.Group
	stopOnce sync.Once
	stopCh   chan struct{}
	now      func() time.Time
}

// NewBroker creates a broker. The vault is connected by Start or lazily on first use.
func NewBroker(cfg Config, deps Deps) *Broker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	local := deps.Local
	if local == nil {
		local = NewEnvSource()
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	return &Broker{
		client:     deps.Client,
		local:      local,
		legacy:     deps.Legacy,
		txMgr:      deps.TxManager,
		decryptor:  deps.Decryptor,
		auditor:    deps.Auditor,
		metrics:    deps.Metrics,
		logger:     logger,
		cache:      NewSecretCache(cfg.CacheSize, cfg.CacheTTL),
		timeout:    timeout,
		envSecrets: cfg.EnvSecrets,
		vaultCfg:   cfg.Vault,
		configured: cfg.Vault.URL != "",
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// Start connects to the configured vault and starts cache maintenance. A
// connection failure is returned but leaves the broker usable; the next
// vault operation retries the connection.
func (b *Broker) Start(ctx context.Context) error {
	go b.cache.StartCleanupWorker(cacheCleanupInterval, b.stopCh)

	if !b.IsConfigured() {
		b.logger.Info("vault not configured, serving secrets from local configuration")
		b.metrics.SetVaultEnabled(false)
		return nil
	}
	if err := b.ensureInitialized(ctx); err != nil {
		return err
	}
	return nil
}

// Shutdown stops background work and drops cached values
func (b *Broker) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.cache.Clear()
		b.logger.Info("secret broker stopped")
	})
	return nil
}

// IsConfigured reports whether a vault URL is set, initialized or not
func (b *Broker) IsConfigured() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.configured
}

func (b *Broker) currentConfig() vault.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vaultCfg
}

// IsEnabled is true only when a vault is configured and initialized
func (b *Broker) IsEnabled() bool {
	return b.IsConfigured() && b.client.IsInitialized()
}

// Status reports the vault state, connecting first if needed
func (b *Broker) Status(ctx context.Context) models.VaultStatus {
	if b.IsConfigured() && !b.client.IsInitialized() {
		if err := b.ensureInitialized(ctx); err != nil {
			b.logger.Warn("vault not reachable for status", zap.Error(err))
		}
	}

	address := b.client.Address()
	if address == "" {
		address = b.currentConfig().URL
	}
	return models.VaultStatus{
		Enabled:     b.IsEnabled(),
		Initialized: b.client.IsInitialized(),
		URL:         address,
		Timestamp:   b.now().UTC(),
	}
}

// ensureInitialized connects the configured vault at most once across
// concurrent callers
func (b *Broker) ensureInitialized(ctx context.Context) error {
	if b.client.IsInitialized() {
		return nil
	}
	if !b.IsConfigured() {
		return shared.ErrVaultDisabled
	}

	_, err, _ := b.flights.Do(flightInitialize, func() (interface{}, error) {
		if b.client.IsInitialized() {
			return nil, nil
		}
		// Detached so one caller's cancellation does not fail the others
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()

		started := time.Now()
		err := b.client.Initialize(initCtx, b.currentConfig())
		b.metrics.RecordVaultOperation("initialize", started, err)
		if err != nil {
			return nil, err
		}
		b.metrics.SetVaultEnabled(true)
		return nil, nil
	})
	if err != nil {
		b.logger.Error("vault initialization failed", zap.Error(err))
		return shared.WrapUpstream("vault is not reachable", err)
	}
	return nil
}

// requireVault fails with ErrVaultDisabled when no vault is configured
func (b *Broker) requireVault(ctx context.Context) error {
	if !b.IsConfigured() {
		return shared.ErrVaultDisabled
	}
	return b.ensureInitialized(ctx)
}

func (b *Broker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// Get reads a secret from the vault when one is configured, otherwise from
// local configuration. A single call never consults both.
func (b *Broker) Get(ctx context.Context, name string) (*models.Secret, error) {
	if err := vault.ValidateName(name); err != nil {
		return nil, err
	}
	if !b.IsConfigured() {
		return b.local.Get(name)
	}
	if err := b.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	if secret, ok := b.cache.Get(name); ok {
		return secret, nil
	}

	// A write that lands while the read is in flight bumps the generation,
	// so the possibly stale value is returned but not cached
	gen := b.cache.Generation(name)

	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	secret, err := b.client.GetSecret(opCtx, name)
	b.metrics.RecordVaultOperation("get", started, err)
	if err != nil {
		return nil, b.upstreamError("get", name, err)
	}

	b.cache.SetIfGeneration(*secret, gen)
	return secret, nil
}

// List returns the names held by the vault
func (b *Broker) List(ctx context.Context) ([]string, error) {
	if err := b.requireVault(ctx); err != nil {
		return nil, err
	}

	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	names, err := b.client.ListSecrets(opCtx)
	b.metrics.RecordVaultOperation("list", started, err)
	if err != nil {
		return nil, b.upstreamError("list", "", err)
	}
	return names, nil
}

// Exists reports whether the vault holds name
func (b *Broker) Exists(ctx context.Context, name string) (bool, error) {
	if err := vault.ValidateName(name); err != nil {
		return false, err
	}
	if err := b.requireVault(ctx); err != nil {
		return false, err
	}

	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	exists, err := b.client.SecretExists(opCtx, name)
	b.metrics.RecordVaultOperation("exists", started, err)
	if err != nil {
		return false, b.upstreamError("exists", name, err)
	}
	return exists, nil
}

// Set creates or overwrites a secret. Requires an admin actor.
func (b *Broker) Set(ctx context.Context, actor *models.Identity, name, value, contentType string) error {
	return b.mutate(ctx, actor, models.AuditActionSecretCreated, name, func(opCtx context.Context) error {
		return b.client.SetSecret(opCtx, name, value, contentType)
	})
}

// Update writes a new version of an existing secret. Requires an admin actor.
func (b *Broker) Update(ctx context.Context, actor *models.Identity, name, value, contentType string) error {
	return b.mutate(ctx, actor, models.AuditActionSecretUpdated, name, func(opCtx context.Context) error {
		return b.client.UpdateSecret(opCtx, name, value, contentType)
	})
}

// Delete removes a secret and all its versions. Requires an admin actor.
func (b *Broker) Delete(ctx context.Context, actor *models.Identity, name string) error {
	return b.mutate(ctx, actor, models.AuditActionSecretDeleted, name, func(opCtx context.Context) error {
		return b.client.DeleteSecret(opCtx, name)
	})
}

func (b *Broker) mutate(ctx context.Context, actor *models.Identity, action models.AuditAction, name string, op func(context.Context) error) error {
	if err := auth.RequireAdmin(actor); err != nil {
		return err
	}
	if err := vault.ValidateName(name); err != nil {
		return err
	}
	if err := b.requireVault(ctx); err != nil {
		return err
	}

	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	err := op(opCtx)
	b.metrics.RecordVaultOperation(string(action), started, err)
	b.cache.Invalidate(name)

	if err != nil {
		err = b.upstreamError(string(action), name, err)
	}
	b.audit(ctx, actor, action, name, err)
	if err != nil {
		return err
	}

	b.logger.Info("vault secret changed",
		zap.String("action", string(action)),
		zap.String("secret_name", name),
		zap.String("actor_email", actor.Email),
		zap.String("request_id", shared.RequestID(ctx)))
	return nil
}

// Initialize (re)connects the vault with cfg. The previous connection stays
// in use if the new one fails. Requires an admin actor.
func (b *Broker) Initialize(ctx context.Context, actor *models.Identity, cfg vault.Config) error {
	if err := auth.RequireAdmin(actor); err != nil {
		return err
	}
	if err := validateVaultURL(cfg.URL); err != nil {
		return err
	}

	current := b.currentConfig()
	if cfg.MountPath == "" {
		cfg.MountPath = current.MountPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = current.Timeout
	}
	// Explicit AppRole credentials replace the configured token
	if cfg.Token == "" && cfg.ClientID == "" && cfg.ClientSecret == "" {
		cfg.Token = current.Token
		cfg.ClientID = current.ClientID
		cfg.ClientSecret = current.ClientSecret
		if cfg.TenantID == "" {
			cfg.TenantID = current.TenantID
		}
	}

	opCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	err := b.client.Initialize(opCtx, cfg)
	b.metrics.RecordVaultOperation("initialize", started, err)
	if err != nil {
		err = b.upstreamError("initialize", "", err)
		b.auditInitialize(ctx, actor, cfg.URL, err)
		return err
	}

	b.mu.Lock()
	b.vaultCfg = cfg
	b.configured = true
	b.mu.Unlock()

	b.cache.Clear()
	b.metrics.SetVaultEnabled(true)
	b.auditInitialize(ctx, actor, cfg.URL, nil)

	b.logger.Info("vault initialized by admin",
		zap.String("actor_email", actor.Email),
		zap.String("request_id", shared.RequestID(ctx)))
	return nil
}

func validateVaultURL(raw string) error {
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: keyVaultUrl must be an absolute http(s) URL", shared.ErrInvalidInput)
	}
	return nil
}

// upstreamError keeps domain errors (not found, validation) and turns
// everything else into a generic upstream error, logging the detail.
func (b *Broker) upstreamError(op, name string, err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) && domainErr.Type != shared.ErrorTypeInternal {
		return err
	}

	message := "vault request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "vault request timed out"
	}
	b.logger.Error(message,
		zap.String("operation", op),
		zap.String("secret_name", name),
		zap.Error(err))
	return shared.WrapUpstream(message, err)
}

func (b *Broker) audit(ctx context.Context, actor *models.Identity, action models.AuditAction, name string, opErr error) {
	if b.auditor == nil {
		return
	}
	if err := b.auditor.LogSecretEvent(actor, action, name, shared.RequestID(ctx), opErr); err != nil {
		b.logger.Warn("failed to queue audit event", zap.String("action", string(action)), zap.Error(err))
	}
}

func (b *Broker) auditInitialize(ctx context.Context, actor *models.Identity, vaultURL string, opErr error) {
	if b.auditor == nil {
		return
	}
	if err := b.auditor.LogVaultInitialized(actor, vaultURL, shared.RequestID(ctx), opErr); err != nil {
		b.logger.Warn("failed to queue audit event", zap.String("action", string(models.AuditActionVaultInitialized)), zap.Error(err))
	}
}
