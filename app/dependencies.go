package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nurksbr/siber-sub001/auth"
	"github.com/nurksbr/siber-sub001/config"
	"github.com/nurksbr/siber-sub001/handlers"
	"github.com/nurksbr/siber-sub001/middleware"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"github.com/nurksbr/siber-sub001/repositories/memory"
	"github.com/nurksbr/siber-sub001/repositories/postgres"
	"github.com/nurksbr/siber-sub001/services"
	"github.com/nurksbr/siber-sub001/services/audit"
	"github.com/nurksbr/siber-sub001/token"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

const (
	redisPingTimeout = 3 * time.Second
	auditStopTimeout = 5 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when users live in memory
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	// Auth
	Codec          *token.Codec
	AuthService    *services.AuthService
	AuthHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	RouteGate      *middleware.RouteGate
	Audit          *audit.AuditService

	// Login throttling
	LoginRateLimit func(http.Handler) http.Handler
	redisClient    *redis.Client

	Health       *handlers.HealthHandler
	AuditHandler *handlers.AuditHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if err := deps.initAudit(); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initRateLimiter(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	if err := deps.seedAdmin(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	deps.Health = handlers.NewHealthHandler(db, logger)
	deps.AuditHandler = handlers.NewAuditHandler(deps.AuditLogs, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects to PostgreSQL when configured, otherwise falls back
// to the in-memory user store
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Users = memory.NewUserRepository()
		d.AuditLogs = memory.NewAuditRepository(memory.DefaultAuditCapacity)
		d.TxManager = memory.NewTransactionManager()
		d.Logger.Warn("no database configured, users are kept in memory")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := factory.NewRepositories()
	d.Users = repos.Users
	d.AuditLogs = repos.Audit
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("repositories initialized",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initAuth builds the token codec and everything that depends on it
func (d *Dependencies) initAuth(cfg *config.Config) error {
	secret, fallback := cfg.Auth.SigningSecret()
	if fallback {
		d.Logger.Warn("JWT_SECRET is not set, using the insecure development secret")
	}

	codec, err := token.NewCodec(secret)
	if err != nil {
		return err
	}
	d.Codec = codec

	d.AuthService = services.NewAuthService(
		d.Users,
		d.TxManager,
		services.NewBcryptHasher(0),
		codec,
		cfg.Auth.SessionTTL,
		d.Logger,
	)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.AuthService, d.Logger)
	d.RouteGate = middleware.NewRouteGate(codec, cfg.Auth.ProtectedPrefixes, cfg.Auth.LoginPath, d.Logger)
	d.AuthHandler = auth.NewHandler(d.AuthService, cfg.Auth.CookieSecure, d.Logger)

	d.Logger.Info("auth initialized",
		zap.Duration("session_ttl", d.AuthService.SessionTTL()),
		zap.Strings("protected_prefixes", cfg.Auth.ProtectedPrefixes),
		zap.Bool("secure_cookie", cfg.Auth.CookieSecure))
	return nil
}

// initAudit starts the audit workers and hooks them into the auth handler
func (d *Dependencies) initAudit() error {
	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return err
	}
	d.AuthHandler.WithAuditor(d.Audit)
	return nil
}

// initRateLimiter builds the login throttle. A redis store is used when
// REDIS_URL is set so every instance shares the same counters.
func (d *Dependencies) initRateLimiter(ctx context.Context, cfg *config.Config) error {
	store := middleware.NewMemoryLimiterStore()

	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}

		var redisStore limiter.Store
		redisStore, err = middleware.NewRedisLimiterStore(client)
		if err != nil {
			_ = client.Close()
			return err
		}
		d.redisClient = client
		store = redisStore
		d.Logger.Info("login rate limiter uses redis", zap.String("addr", opts.Addr))
	}

	mw, err := middleware.LoginRateLimit(store, cfg.RateLimit.LoginRate, d.Logger)
	if err != nil {
		return err
	}
	d.LoginRateLimit = mw
	return nil
}

// seedAdmin creates the configured administrator outside production
func (d *Dependencies) seedAdmin(ctx context.Context, cfg *config.Config) error {
	if cfg.Auth.SeedAdminEmail == "" || cfg.Auth.SeedAdminPassword == "" {
		return nil
	}
	if cfg.IsProduction() {
		d.Logger.Warn("ignoring SEED_ADMIN_EMAIL in production")
		return nil
	}

	user, err := d.AuthService.EnsureUser(ctx, "Admin", cfg.Auth.SeedAdminEmail, cfg.Auth.SeedAdminPassword, models.RoleAdmin)
	if err != nil {
		return err
	}
	d.Logger.Info("admin user ready", zap.String("email", user.Email), zap.String("user_id", user.ID.String()))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// drain queued audit events before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil && !errors.Is(err, audit.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
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

func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}
