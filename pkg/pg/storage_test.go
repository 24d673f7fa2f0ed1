package pg_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/limiter/limitertest"
	"github.com/dmitrymomot/jobkit/pkg/pg"
	"github.com/dmitrymomot/jobkit/pkg/queue"
	"github.com/dmitrymomot/jobkit/pkg/queue/queuetest"
)

func testPool(t *testing.T) (*pgxpool.Pool, pg.Config) {
	t.Helper()

	url := os.Getenv("JOBKIT_TEST_PG_URL")
	if url == "" {
		t.Skip("JOBKIT_TEST_PG_URL is not set")
	}

	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     8,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "jobkit_schema_migrations",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, nil))
	require.NoError(t, pg.Healthcheck(pool)(ctx))
	return pool, cfg
}

func TestQueueStorage(t *testing.T) {
	pool, cfg := testPool(t)

	queuetest.RunStorageSuite(t, func(t *testing.T) queue.Storage {
		s := pg.NewQueueStorage(pool, cfg, nil)
		require.NoError(t, s.Setup(context.Background()))
		return s
	})
}

func TestRateStorage(t *testing.T) {
	pool, _ := testPool(t)

	limitertest.RunStorageSuite(t, func(t *testing.T) limiter.Storage {
		return pg.NewRateStorage(pool)
	})
}

func TestConnect_EmptyConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{})
	require.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}

func TestConnect_InvalidConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{ConnectionString: "postgres://%zz"})
	require.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
}
