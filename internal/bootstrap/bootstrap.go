// Package bootstrap holds the startup steps shared by the binaries: config
// resolution, the database pool and the wiring of the job lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sgjobs_backend/internal/bexio"
	"sgjobs_backend/internal/caldav"
	"sgjobs_backend/internal/jobs"
	"sgjobs_backend/internal/options"
	"sgjobs_backend/internal/payments"
	"sgjobs_backend/internal/teams"
	"sgjobs_backend/internal/token"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/db"
	"sgjobs_backend/platform/logger"
	"sgjobs_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime is a connected process: resolved config, logger and pool.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	Pool   *pgxpool.Pool
}

// Close releases the pool.
func (r *Runtime) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// OpenDatabase connects to the database named by the config file or the
// environment, optionally running migrations. It does not need the rest of
// the configuration.
func OpenDatabase(ctx context.Context, migrate bool) (*pgxpool.Pool, *config.Loader, *logger.Logger, error) {
	loader, err := config.NewLoader()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	log := logger.New(loader.Env())

	dsn := loader.DatabaseURL()
	if dsn == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is required")
	}

	var pool *pgxpool.Pool
	if err := WithRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, config.DatabaseURL(dsn))
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if migrate {
		if err := WithRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool)
		}); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	return pool, loader, log, nil
}

// Start connects to the database, optionally runs migrations, and resolves
// the configuration with stored options layered in.
func Start(ctx context.Context, migrate bool) (*Runtime, error) {
	pool, loader, log, err := OpenDatabase(ctx, migrate)
	if err != nil {
		return nil, err
	}

	stored, err := options.New(pool).Load(ctx)
	if err != nil {
		log.Warn("stored options unavailable, continuing without them", "error", err)
	}

	cfg, err := loader.Load(stored)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Runtime{Config: cfg, Log: logger.New(cfg.Env), Pool: pool}, nil
}

// Services is the wired job lifecycle.
type Services struct {
	Teams    *teams.Module
	Jobs     *jobs.Module
	Gateway  *bexio.Gateway
	Calendar *caldav.Client
	Tokens   *token.Service
	Sweep    *payments.Sweep
}

// Wire builds the lifecycle services on top of a runtime.
func Wire(rt *Runtime, val *validator.Validator) (*Services, error) {
	tokens, err := token.New(rt.Config)
	if err != nil {
		return nil, err
	}

	gateway := bexio.NewGateway(bexio.NewClient(rt.Config, rt.Log))
	calendar := caldav.NewClient(rt.Config)
	projector := caldav.NewProjector(calendar)

	teamsModule := teams.NewModule(rt.Pool, rt.Log)
	jobsModule := jobs.NewModule(rt.Pool, teamsModule.Service, gateway, projector, tokens, rt.Config, rt.Log, val)

	return &Services{
		Teams:    teamsModule,
		Jobs:     jobsModule,
		Gateway:  gateway,
		Calendar: calendar,
		Tokens:   tokens,
		Sweep:    payments.NewSweep(jobsModule.Service, gateway, rt.Log),
	}, nil
}

// WithRetry runs fn until it succeeds, waiting attempt² × baseDelay between
// attempts.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
