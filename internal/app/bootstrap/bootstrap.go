package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	electionvoting "intellicash/contexts/member-governance/election-voting"
	postgresadapter "intellicash/contexts/member-governance/election-voting/adapters/postgres"
	redisadapter "intellicash/contexts/member-governance/election-voting/adapters/redis"
	"intellicash/contexts/member-governance/election-voting/application/security"
	"intellicash/internal/platform/config"
	"intellicash/internal/platform/db"
	"intellicash/internal/platform/httpserver"
	"intellicash/internal/platform/redisstore"

	"github.com/redis/go-redis/v9"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	redis    *redis.Client
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	redis        *redis.Client
	closer       func(ctx context.Context) error
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	module, pg, rdb, err := buildModule(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		redis:    rdb,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	module, pg, rdb, err := buildModule(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &WorkerApp{
		postgres:     pg,
		redis:        rdb,
		pollInterval: cfg.CloserInterval,
		logger:       logger,
	}
	if cfg.EnableElectionCloser {
		app.closer = module.Closer.RunOnce
	}
	return app, nil
}

func buildModule(cfg config.Config, logger *slog.Logger) (electionvoting.Module, *db.Postgres, *redis.Client, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return electionvoting.Module{}, nil, nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return electionvoting.Module{}, nil, nil, err
	}

	rdb, err := redisstore.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = pg.Close()
		return electionvoting.Module{}, nil, nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(); err != nil {
		_ = rdb.Close()
		_ = pg.Close()
		return electionvoting.Module{}, nil, nil, err
	}

	module := electionvoting.NewModule(electionvoting.Dependencies{
		Elections: repo,
		Ballots:   repo,
		Results:   repo,
		Audit:     repo,
		RateStore: redisadapter.NewRateStore(rdb),
		Lock:      redisadapter.NewRecomputeLock(rdb),
		Clock:     postgresadapter.SystemClock{},
		IDGen:     postgresadapter.UUIDGenerator{},
		Security: security.Config{
			MaxAttempts:                 cfg.RateLimitMaxAttempts,
			AttemptWindow:               cfg.RateLimitWindow,
			IPReputationThreshold:       cfg.IPReputationThreshold,
			FingerprintMaxIPs:           cfg.FingerprintMaxIPs,
			EnforceVoterRoleRestriction: cfg.EnforceVoterRoleRestriction,
		},
		LockTTL: cfg.ResultsLockTTL,
		Logger:  logger,
	})
	return module, pg, rdb, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.closer == nil {
		w.logger.Info("worker has no enabled jobs, exiting",
			"event", "bootstrap_worker_idle",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return nil
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		// Sweep failures are transient (the sweep logs them itself);
		// keep ticking and exit only on context cancellation.
		if err := w.closer(ctx); err != nil {
			w.logger.Error("worker sweep failed",
				"event", "bootstrap_worker_sweep_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.redis != nil {
		_ = w.redis.Close()
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
