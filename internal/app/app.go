// Package app assembles the storage layer and domain services shared by
// the API server and the sweep command.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
	"github.com/iliyamo/training-booking/internal/service"
)

// App holds the opened resources and the services built on top of them.
type App struct {
	DB      *sql.DB
	Dialect database.Dialect
	Redis   *redis.Client // nil when Redis is unreachable
	Events  queue.Publisher
	Audit   *repository.AuditRepo

	Gate     *service.Gate
	Ledger   *service.Ledger
	Roster   *service.Roster
	Settings *service.Settings
	Sweep    *service.Sweep
}

// New opens the database, applies migrations, connects to Redis and
// RabbitMQ when available and wires the services.  Call Close when done.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, dialect, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cacheCfg, err := config.LoadSettingsCacheConfig()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting and settings cache disabled")
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		events = queue.NewAMQPPublisher(cfg.RabbitURL, cfg.EventsExchange)
	}

	a := &App{DB: db, Dialect: dialect, Redis: rdb, Events: events, Audit: repository.NewAuditRepo(db)}
	a.wire(rdb, cacheCfg, cfg.Policy)

	if n, err := a.Settings.SeedDefaults(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	} else if n > 0 {
		log.Printf("seeded %d default settings", n)
	}
	return a, nil
}

// wire builds the services over a.DB on the wall clock.
func (a *App) wire(rdb *redis.Client, cacheCfg config.SettingsCacheConfig, defaults config.PolicyDefaults) {
	trainings := repository.NewTrainingRepo(a.DB, a.Dialect)
	enrollments := repository.NewEnrollmentRepo(a.DB, a.Dialect)
	debts := repository.NewDebtRepo(a.DB, a.Dialect)
	bans := repository.NewBanRepo(a.DB, a.Dialect)

	a.Settings = service.NewSettings(repository.NewSettingRepo(a.DB), rdb, cacheCfg, defaults, nil)
	a.Gate = service.NewGate(a.DB, bans, debts, nil)
	a.Ledger = service.NewLedger(a.DB, debts, trainings, a.Gate, nil)
	a.Roster = service.NewRoster(a.DB, trainings, enrollments, debts, a.Gate, a.Settings, nil)
	a.Sweep = service.NewSweep(a.DB, enrollments, a.Ledger, a.Gate, a.Settings, a.Events, nil)
}

// RunSweepEvery runs the autoban sweep on a ticker until ctx is done.
func (a *App) RunSweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Sweep.RunWithPolicy(ctx)
			if err != nil {
				log.Printf("autoban-sweep: %v", err)
				continue
			}
			queue.Emit(ctx, a.Events, queue.NewEvent(queue.EventAutobanCompleted, 0, 0, "autoban", 0,
				map[string]any{"processed": n}))
		}
	}
}

// Close releases the publisher, Redis client and database.
func (a *App) Close() {
	if c, ok := a.Events.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.DB.Close()
}
