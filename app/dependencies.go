package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/portal/access"
	"github.com/upb/portal/auth"
	"github.com/upb/portal/config"
	"github.com/upb/portal/handlers"
	"github.com/upb/portal/identity"
	"github.com/upb/portal/internal/observability"
	"github.com/upb/portal/middleware"
	"github.com/upb/portal/repositories"
	"github.com/upb/portal/repositories/postgres"
	"github.com/upb/portal/services/audit"
	"github.com/upb/portal/services/ratelimit"
	"github.com/upb/portal/session"
	"go.uber.org/zap"
)

const (
	tokenLeeway            = 30 * time.Second
	recorderStopTimeout    = 5 * time.Second
	minRecorderStopTimeout = time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled
	DB      *postgres.DB           // nil when DATABASE_URL / DB_HOST are unset
	Redis   redis.UniversalClient  // nil when REDIS_ADDR is unset

	// Identity
	Identity *identity.Client // nil when IDENTITY_URL is unset
	Resolver *session.Resolver
	Guard    *access.Guard

	// Optional services
	Limiter      *ratelimit.Service
	AccessEvents repositories.AccessEventRepository
	Recorder     *audit.Recorder

	// HTTP
	AuthHandler      *auth.Handler
	AccessMiddleware *middleware.AccessMiddleware
	Health           *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRedis(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps.initIdentity(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Bool("identity_provider", deps.Identity != nil),
		zap.Bool("access_events", deps.Recorder != nil),
		zap.Bool("rate_limiting", deps.Limiter != nil),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initDatabase opens Postgres, ensures the schema and starts the access event recorder
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("database not configured, access events disabled")
		return nil
	}

	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.AccessEvents = postgres.NewAccessEventRepository(db, d.Logger)
	recorder := audit.NewRecorder(d.AccessEvents, d.Logger, audit.DefaultConfig())
	if err := recorder.Start(); err != nil {
		return fmt.Errorf("failed to start access recorder: %w", err)
	}
	d.Recorder = recorder
	return nil
}

// initRedis connects to Redis for magic link rate limiting
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis == nil {
		d.Logger.Warn("redis not configured, magic link rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	d.Redis = client

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Limiter = ratelimit.NewService(client, ratelimit.Config{
		MaxPerEmail: cfg.RateLimit.MagicLinkMaxPerEmail,
		MaxPerIP:    cfg.RateLimit.MagicLinkMaxPerIP,
		Window:      cfg.RateLimit.MagicLinkWindow,
	}, d.Logger)
	d.Logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	return nil
}

// initIdentity builds the provider client, resolver and guard
func (d *Dependencies) initIdentity(cfg *config.Config) {
	screen := identity.NewTokenInspector(cfg.Identity.JWTSecret, tokenLeeway)

	var fetcher session.UserFetcher
	if cfg.Identity.URL == "" {
		d.Logger.Warn("identity provider not configured, every request is signed out")
		fetcher = rejectAllFetcher{}
	} else {
		d.Identity = identity.NewClient(identity.Config{
			URL:     cfg.Identity.URL,
			AnonKey: cfg.Identity.AnonKey,
			Timeout: cfg.Identity.Timeout,
		}, d.Logger, identity.WithObserver(d.Metrics))
		fetcher = d.Identity
	}

	d.Resolver = session.NewResolver(fetcher, screen, d.Logger)
	d.Guard = access.NewGuard(d.Resolver, access.GuardOptions{
		SignInPath:          cfg.Auth.LoginPath,
		FoldProviderFailure: cfg.Auth.ProviderFailureAsNone,
	}, d.Logger)
}

// initHTTP builds the auth handler, access middleware and health handler
func (d *Dependencies) initHTTP(cfg *config.Config) {
	var provider auth.IdentityProvider
	if d.Identity != nil {
		provider = d.Identity
	}
	var limiter auth.MagicLinkLimiter
	if d.Limiter != nil {
		limiter = d.Limiter
	}
	d.AuthHandler = auth.NewHandler(cfg.Auth, provider, d.Resolver, limiter, d.Metrics, d.Logger)

	var events middleware.EventRecorder
	if d.Recorder != nil {
		events = d.Recorder
	}
	d.AccessMiddleware = middleware.NewAccessMiddleware(d.Guard, cfg.Auth.AccessCookieName, d.Metrics, events, d.Logger).
		WithErrorWriter(handlers.ServiceErrorWriter(d.Logger))

	var checks []handlers.DependencyCheck
	if d.Identity != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "identity", Probe: d.Identity.Health})
	}
	if d.DB != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "database", Probe: d.DB.HealthCheck})
	}
	if d.Limiter != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Probe: d.Limiter.Ping})
	}
	d.Health = handlers.NewHealthHandler(d.Logger, checks...)
}

// stopTimeout is the time left before ctx's deadline, but never less than
// minRecorderStopTimeout so an expired context still drains the buffer.
func stopTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return recorderStopTimeout
	}
	return max(time.Until(deadline), minRecorderStopTimeout)
}

// rejectAllFetcher reports every token as unknown (used when no identity provider is configured)
type rejectAllFetcher struct{}

func (rejectAllFetcher) GetUser(context.Context, string) (*identity.Principal, error) {
	return nil, identity.ErrNoSession
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued access events before the pool goes away
	if d.Recorder != nil {
		if err := d.Recorder.Stop(stopTimeout(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop access recorder: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
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
