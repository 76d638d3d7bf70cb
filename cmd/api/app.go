package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"hr-suite/internal/audit"
	"hr-suite/internal/auth"
	"hr-suite/internal/changerequest"
	"hr-suite/internal/config"
	"hr-suite/internal/delegation"
	"hr-suite/internal/httpapi"
	"hr-suite/internal/lifecycle"
	"hr-suite/internal/metrics"
	"hr-suite/internal/notify"
	"hr-suite/internal/reporting"
	"hr-suite/internal/sequence"
	"hr-suite/internal/storage/sqlstore"
	"hr-suite/internal/workflow"
	"hr-suite/pkg/utils"
)

// app holds the process-wide collaborators. No globals.
type app struct {
	cfg      config.Config
	store    *sqlstore.Store
	rdb      *redis.Client
	metrics  *metrics.Recorder
	handlers httpapi.Handlers
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, metrics: metrics.NewRecorder()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	policies, err := config.LoadPolicies(cfg.Workflow.PolicyFile)
	if err != nil {
		return nil, err
	}

	dialect, err := sqlstore.ParseDialect(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.PostgresDSN()
	if dialect == sqlstore.SQLite {
		dsn = sqlstore.SQLiteDSN(cfg.DB.Path)
	}
	a.store, err = sqlstore.Open(ctx, dialect, dsn, utils.PoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("%s init failed: %w", cfg.DB.Driver, err)
	}

	if cfg.NeedsRedis() {
		a.rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
	}

	var notifier workflow.Notifier = notify.NewLog(log)
	if cfg.Notify.Backend == config.BackendRedis {
		notifier = notify.Multi{notify.NewRedisStream(a.rdb, cfg.Notify.Stream, notify.DefaultMaxLen), notifier}
	}

	var seq changerequest.Sequencer = sequence.Table{}
	if cfg.Workflow.SequenceBackend == config.BackendRedis {
		seq = sequence.NewRedis(a.rdb, "", sequence.StoredFloor)
	}

	auditSvc := audit.NewService(a.store)
	deps := workflow.Deps{
		Store:           a.store,
		Audit:           auditSvc,
		Notifier:        notifier,
		Observer:        a.metrics,
		Policies:        policies,
		Logger:          log,
		ConflictRetries: cfg.Workflow.ConflictRetries,
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}

	a.handlers = httpapi.Handlers{
		Auth:        authManager,
		Records:     lifecycle.NewService(deps),
		Requests:    changerequest.NewService(deps, seq),
		Delegations: delegation.NewService(deps),
		Audit:       auditSvc,
		Reports:     reporting.NewService(a.store),
		DevTokens:   !cfg.IsProduction(),
	}
	return a, nil
}
