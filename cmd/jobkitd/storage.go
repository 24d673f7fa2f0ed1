package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dmitrymomot/jobkit/pkg/badger"
	"github.com/dmitrymomot/jobkit/pkg/config"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/httpserver"
	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/mongo"
	"github.com/dmitrymomot/jobkit/pkg/pg"
	"github.com/dmitrymomot/jobkit/pkg/queue"
	"github.com/dmitrymomot/jobkit/pkg/redis"
)

// Storage drivers accepted by JOBKIT_STORAGE.
const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverRedis    = "redis"
	driverMongo    = "mongo"
	driverBadger   = "badger"
)

// backend bundles everything a driver provides to the daemon.
type backend struct {
	jobs   queue.Storage
	rates  limiter.Storage
	probes map[string]httpserver.Probe
	closer func(context.Context) error
}

func (b *backend) Close(ctx context.Context) error {
	var errs []error
	if c, ok := b.rates.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if b.closer != nil {
		errs = append(errs, b.closer(ctx))
	}
	return errors.Join(errs...)
}

// openBackend connects the selected driver. Driver settings are read from the
// environment only when that driver is chosen.
func openBackend(ctx context.Context, driver string, log *slog.Logger) (*backend, error) {
	switch driver {
	case "", driverMemory:
		return &backend{
			jobs:  queue.NewMemoryStorage(),
			rates: limiter.NewMemoryStorage(),
		}, nil

	case driverPostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			jobs:   pg.NewQueueStorage(pool, cfg, log),
			rates:  pg.NewRateStorage(pool),
			probes: map[string]httpserver.Probe{driverPostgres: pg.Healthcheck(pool)},
			closer: func(context.Context) error { pool.Close(); return nil },
		}, nil

	case driverRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			jobs:   redis.NewQueueStorage(client, cfg.KeyPrefix),
			rates:  redis.NewRateStorage(client, cfg.KeyPrefix),
			probes: map[string]httpserver.Probe{driverRedis: redis.Healthcheck(client)},
			closer: func(context.Context) error { return client.Close() },
		}, nil

	case driverMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := db.Client()
		return &backend{
			jobs:   mongo.NewQueueStorage(db),
			rates:  limiter.NewMemoryStorage(),
			probes: map[string]httpserver.Probe{driverMongo: mongo.Healthcheck(client)},
			closer: client.Disconnect,
		}, nil

	case driverBadger:
		var cfg badger.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := badger.Open(cfg, log)
		if err != nil {
			return nil, err
		}
		jobs, err := badger.NewQueueStorage(db.DB)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		return &backend{
			jobs:  jobs,
			rates: limiter.NewMemoryStorage(),
			closer: func(context.Context) error {
				return errors.Join(jobs.Close(), db.Close())
			},
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown storage driver %q", failure.ErrConfiguration, driver)
}
