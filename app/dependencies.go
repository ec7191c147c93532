package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/tenant-gateway/config"
	"github.com/upb/tenant-gateway/handlers"
	"github.com/upb/tenant-gateway/internal/auth"
	"github.com/upb/tenant-gateway/internal/observability"
	"github.com/upb/tenant-gateway/internal/secrets"
	"github.com/upb/tenant-gateway/middleware"
	"github.com/upb/tenant-gateway/oidc"
	"github.com/upb/tenant-gateway/repositories"
	"github.com/upb/tenant-gateway/repositories/postgres"
	"github.com/upb/tenant-gateway/services"
	"github.com/upb/tenant-gateway/services/audit"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/upb/tenant-gateway"
	auditStopTimeout    = 5 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config    *config.Config
	DB        *postgres.DB
	Logger    *zap.Logger
	Telemetry *observability.Telemetry

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Tenants     repositories.TenantRepository
	Memberships repositories.MembershipRepository
	Users       repositories.UserRepository
	Credentials repositories.CredentialRepository
	AuditLogs   repositories.AuditRepository
	TxManager   repositories.TransactionManager

	// Auth
	Mode           auth.Mode
	KeyCache       *oidc.SigningKeyCache
	Gate           *auth.Gate
	AuthMiddleware *middleware.AuthMiddleware

	// Secrets
	Cipher *secrets.Cipher

	// Services
	TenantService     *services.TenantService
	CredentialService *services.CredentialService
	Audit             *audit.AuditService

	// Handlers
	HealthHandler     *handlers.HealthHandler
	MeHandler         *handlers.MeHandler
	TenantHandler     *handlers.TenantHandler
	CredentialHandler *handlers.CredentialHandler
	AuditHandler      *handlers.AuditHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initTelemetry(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.wire(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("auth_mode", deps.Mode.String()))
	return deps, nil
}

// NewDependenciesWithRepositories wires everything above the storage layer
// around repos. It is used where the database is owned elsewhere.
func NewDependenciesWithRepositories(cfg *config.Config, repos *repositories.Repositories, txManager repositories.TransactionManager, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Tenants:     repos.Tenants,
		Memberships: repos.Memberships,
		Users:       repos.Users,
		Credentials: repos.Credentials,
		AuditLogs:   repos.AuditLogs,
		TxManager:   txManager,
	}

	if err := deps.initTelemetry(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := deps.wire(cfg); err != nil {
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) wire(cfg *config.Config) error {
	if err := d.initAuth(cfg); err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	if err := d.initSecrets(cfg); err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}
	if err := d.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	d.initHandlers()
	return nil
}

func (d *Dependencies) initTelemetry(cfg *config.Config) error {
	telemetry, err := observability.NewTelemetry(cfg.Observability.MetricsEnabled)
	if err != nil {
		return err
	}
	d.Telemetry = telemetry
	return nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if cfg.Database.InitSchema {
		if err := d.DB.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Tenants = repos.Tenants
	d.Memberships = repos.Memberships
	d.Users = repos.Users
	d.Credentials = repos.Credentials
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	mode, err := auth.ModeFromConfig(cfg)
	if err != nil {
		return err
	}
	d.Mode = mode

	meter := d.Telemetry.Meter(instrumentationName)

	var verifier auth.TokenVerifier
	switch {
	case cfg.Identity.Configured():
		keys, err := oidc.NewSigningKeyCache(oidc.KeyCacheConfig{
			JWKSURL:      cfg.Identity.KeySetURL(),
			TTL:          cfg.Identity.KeyCacheTTL,
			FetchTimeout: cfg.Identity.FetchTimeout,
		}, d.Logger, meter)
		if err != nil {
			return fmt.Errorf("failed to create signing key cache: %w", err)
		}

		tokens, err := oidc.NewTokenVerifier(keys, oidc.VerifierConfig{
			Audience:  cfg.Identity.ClientID,
			Issuer:    cfg.Identity.Issuer(),
			ClockSkew: cfg.Identity.ClockSkew,
		}, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}

		d.KeyCache = keys
		verifier = tokens
		d.Logger.Info("token verification enabled",
			zap.String("issuer", cfg.Identity.Issuer()),
			zap.String("jwks_url", cfg.Identity.KeySetURL()))
	case mode.Development():
		d.Logger.Warn("identity provider not configured, only the development principal can authenticate")
	default:
		// Every bearer token is rejected so protected routes return 401
		d.Logger.Warn("identity provider not configured, all tokens will be rejected")
		verifier = rejectAllVerifier{}
	}

	gate, err := auth.NewGate(auth.GateConfig{
		Mode:     mode,
		Verifier: verifier,
		Identities: auth.NewIdentityResolver(mode, d.Users, auth.DevIdentity{
			Email:       cfg.Auth.DevEmail,
			DisplayName: cfg.Auth.DevDisplayName,
		}, d.Logger),
		Tenants: auth.NewTenantResolver(d.Tenants, d.Memberships, mode, cfg.Auth.BaseDomain, d.Logger),
		Tracer:  otel.GetTracerProvider().Tracer(instrumentationName),
		Meter:   meter,
		Logger:  d.Logger,
	})
	if err != nil {
		return err
	}

	d.Gate = gate
	d.AuthMiddleware = middleware.NewAuthMiddleware(gate, d.Logger)

	if mode.Development() {
		d.Logger.Warn("development auth mode enabled, requests without credentials run as the development principal",
			zap.String("dev_email", cfg.Auth.DevEmail))
	}
	return nil
}

func (d *Dependencies) initSecrets(cfg *config.Config) error {
	cipher, err := secrets.New(cfg.Secrets.MasterKey, cfg.Secrets.KDFWorkers, d.Logger, d.Telemetry.Meter(instrumentationName))
	if err != nil {
		return err
	}
	d.Cipher = cipher
	return nil
}

func (d *Dependencies) initServices() error {
	d.TenantService = services.NewTenantService(d.Tenants, d.Memberships, d.TxManager, d.Logger)
	d.CredentialService = services.NewCredentialService(d.Credentials, d.Cipher, d.Logger)

	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.DefaultConfig())
	return d.Audit.Start()
}

func (d *Dependencies) initHandlers() {
	var conn *sql.DB
	if d.DB != nil {
		conn = d.DB.DB
	}

	var keys handlers.KeyCacheStats
	if d.KeyCache != nil {
		keys = d.KeyCache
	}

	d.HealthHandler = handlers.NewHealthHandler(conn, keys, d.Logger)
	d.MeHandler = handlers.NewMeHandler(d.Logger)
	d.TenantHandler = handlers.NewTenantHandler(d.TenantService, d.Audit, d.Logger)
	d.CredentialHandler = handlers.NewCredentialHandler(d.CredentialService, d.Audit, d.Logger)
	d.AuditHandler = handlers.NewAuditHandler(d.Audit, d.Logger)
}

// rejectAllVerifier rejects all tokens (used when no identity provider is configured)
type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(context.Context, string) (*oidc.ClaimSet, error) {
	return nil, oidc.ErrInvalidToken
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued audit entries while the database is still open
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil && !errors.Is(err, audit.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Telemetry != nil {
		if err := d.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
