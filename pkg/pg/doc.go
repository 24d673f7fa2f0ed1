// Package pg stores jobs and rate limiter windows in PostgreSQL through
// pgx/v5.
//
// Connect opens a pool with retries and Migrate applies the embedded goose
// migrations. QueueStorage implements queue.Storage: claims pick the oldest
// eligible job with FOR UPDATE SKIP LOCKED, so workers on many hosts can
// share one queue without handing a job out twice. RateStorage implements
// limiter.Storage and guards admission with pg_advisory_xact_lock.
//
// Basic usage:
//
//	cfg := config.MustLoad[pg.Config]()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	storage := pg.NewQueueStorage(pool, cfg, logger)
//	srv, err := queue.NewServer(storage, handler, queue.WithQueueName("emails"))
//
// Integration tests run only when JOBKIT_TEST_PG_URL is set.
package pg
