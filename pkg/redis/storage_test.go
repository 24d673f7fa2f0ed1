package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/limiter/limitertest"
	"github.com/dmitrymomot/jobkit/pkg/queue"
	"github.com/dmitrymomot/jobkit/pkg/queue/queuetest"
	"github.com/dmitrymomot/jobkit/pkg/redis"
)

func testClient(t *testing.T) *goredis.Client {
	t.Helper()

	url := os.Getenv("JOBKIT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JOBKIT_TEST_REDIS_URL is not set")
	}

	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, redis.Healthcheck(client)(context.Background()))
	return client
}

func TestQueueStorage(t *testing.T) {
	client := testClient(t)

	queuetest.RunStorageSuite(t, func(t *testing.T) queue.Storage {
		s := redis.NewQueueStorage(client, "jobkit-test-"+uuid.NewString()[:8])
		require.NoError(t, s.Setup(context.Background()))
		return s
	})
}

func TestRateStorage(t *testing.T) {
	client := testClient(t)

	limitertest.RunStorageSuite(t, func(t *testing.T) limiter.Storage {
		return redis.NewRateStorage(client, "jobkit-test")
	})
}

func TestConnect_Validation(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{})
	require.ErrorIs(t, err, redis.ErrEmptyConnectionURL)

	_, err = redis.Connect(context.Background(), redis.Config{ConnectionURL: "not-a-url"})
	require.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}
