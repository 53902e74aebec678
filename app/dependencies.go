package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/authvault/config"
	"github.com/upb/authvault/handlers"
	"github.com/upb/authvault/internal/auth"
	"github.com/upb/authvault/internal/observability"
	"github.com/upb/authvault/internal/vault"
	"github.com/upb/authvault/middleware"
	"github.com/upb/authvault/repositories"
	"github.com/upb/authvault/repositories/postgres"
	"github.com/upb/authvault/services/audit"
	"github.com/upb/authvault/services/secrets"
)

const (
	driverMemory       = "memory"
	memoryVaultURL     = "memory://local"
	auditStopTimeout   = 5 * time.Second
	brokerStartTimeout = 15 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory, nil when built without a database
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB

	// Repositories
	Users         repositories.UserRepository
	LegacySecrets repositories.LegacySecretRepository
	AuditLogs     repositories.AuditRepository
	TxManager     repositories.TransactionManager

	// Services
	TokenCodec   *auth.TokenCodec
	Resolver     *auth.IdentityResolver
	VaultClient  vault.Client
	Broker       *secrets.Broker
	AuditService *audit.AuditService

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AdminLimiter   *middleware.RateLimiter
	AuthHandler    *handlers.AuthHandler
	VaultHandler   *handlers.VaultHandler
	HealthHandler  *handlers.HealthHandler
}

// NewDependencies opens the database and wires every component.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Build(ctx, cfg, logger, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// Build wires the components over an already open repository factory.
// factory may be nil, in which case bypass strategies that need the user
// store, audit persistence and legacy migration are unavailable.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if factory != nil {
		deps.initRepositories()
	}

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if deps.AuditLogs != nil {
		deps.AuditService = audit.NewAuditService(deps.AuditLogs, logger, audit.DefaultConfig())
		if err := deps.AuditService.Start(); err != nil {
			return nil, fmt.Errorf("failed to start audit service: %w", err)
		}
	}

	if err := deps.initSecrets(ctx, cfg); err != nil {
		deps.abandon()
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}

	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Bool("database", factory != nil),
		zap.Bool("bypass", deps.Resolver.BypassEnabled()),
		zap.Bool("vault_configured", deps.Broker.IsConfigured()))
	return deps, nil
}

// initDatabase opens the pool, checks it and creates the schema
func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.RepositoryFactory, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository factory: %w", err)
	}

	db := factory.GetDB()
	if err := db.PingContext(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return factory, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.DB = d.RepoFactory.GetDB()
	d.Users = repos.Users
	d.LegacySecrets = repos.LegacySecrets
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		DefaultTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}
	d.TokenCodec = codec

	var store auth.UserStore
	if d.Users != nil {
		store = d.Users
	}

	bypass := cfg.BypassActive()
	if cfg.Bypass.Enabled && !bypass {
		d.Logger.Warn("AUTH_BYPASS_ENABLED ignored outside a non-production environment",
			zap.String("environment", cfg.Environment))
	}

	d.Resolver = auth.NewIdentityResolver(codec, store, auth.ResolverConfig{
		BypassEnabled:      bypass,
		AdminEmails:        cfg.Bypass.AdminEmails,
		MembershipFallback: cfg.Bypass.MembershipFallback,
	}, d.Logger, d.Metrics)
	return nil
}

func (d *Dependencies) initSecrets(ctx context.Context, cfg *config.Config) error {
	vaultCfg := vault.Config{
		URL:          cfg.Vault.URL,
		TenantID:     cfg.Vault.Namespace,
		ClientID:     cfg.Vault.RoleID,
		ClientSecret: cfg.Vault.SecretID,
		Token:        cfg.Vault.Token,
		MountPath:    cfg.Vault.MountPath,
		Timeout:      cfg.Vault.Timeout,
	}

	if cfg.Vault.Driver == driverMemory {
		d.VaultClient = vault.NewMemoryClient()
		if vaultCfg.URL == "" {
			vaultCfg.URL = memoryVaultURL
		}
		d.Logger.Warn("using in-memory vault; secrets are lost on restart")
	} else {
		d.VaultClient = vault.NewHashiCorpClient(d.Logger)
	}

	decryptor, err := secrets.NewLegacyDecryptor(cfg.Legacy.AgeIdentity)
	if err != nil {
		return err
	}

	brokerDeps := secrets.Deps{
		Client:    d.VaultClient,
		Local:     secrets.NewEnvSource(),
		Legacy:    d.LegacySecrets,
		TxManager: d.TxManager,
		Decryptor: decryptor,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
	}
	if d.AuditService != nil {
		brokerDeps.Auditor = d.AuditService
	}

	d.Broker = secrets.NewBroker(secrets.Config{
		Vault:            vaultCfg,
		OperationTimeout: cfg.Vault.Timeout,
		CacheTTL:         cfg.Vault.CacheTTL,
		CacheSize:        cfg.Vault.CacheSize,
		EnvSecrets:       cfg.Vault.EnvSecrets,
	}, brokerDeps)

	startCtx, cancel := context.WithTimeout(ctx, brokerStartTimeout)
	defer cancel()
	if err := d.Broker.Start(startCtx); err != nil {
		// The broker retries on first use; readiness reports the vault as unhealthy meanwhile
		d.Logger.Error("vault not reachable at startup", zap.Error(err))
	}
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Resolver, d.Logger)
	d.AdminLimiter = middleware.NewRateLimiter(cfg.Vault.AdminRPS, cfg.Vault.AdminBurst, d.Logger)

	var (
		refreshAuditor handlers.RefreshAuditor
		auditReader    handlers.AuditReader
		dbChecker      handlers.DatabaseChecker
	)
	if d.AuditService != nil {
		refreshAuditor = d.AuditService
	}
	if d.AuditLogs != nil {
		auditReader = d.AuditLogs
	}
	if d.DB != nil {
		dbChecker = d.DB
	}

	d.AuthHandler = handlers.NewAuthHandler(d.TokenCodec, refreshAuditor, d.Logger)
	d.VaultHandler = handlers.NewVaultHandler(d.Broker, auditReader, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(dbChecker, d.Broker, d.Logger)
}

func (d *Dependencies) stopAudit() error {
	if d.AuditService == nil {
		return nil
	}
	return d.AuditService.Stop(auditStopTimeout)
}

// abandon releases what Build started before a later step failed. The
// caller owns the repository factory.
func (d *Dependencies) abandon() {
	if err := d.stopAudit(); err != nil {
		d.Logger.Warn("failed to stop audit service", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Broker != nil {
		if err := d.Broker.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop secret broker: %w", err))
		}
	}

	// Drain queued audit events before the pool goes away
	if err := d.stopAudit(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
