package limiter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewRate_Validation(t *testing.T) {
	t.Parallel()

	store := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	tests := []struct {
		name    string
		storage limiter.Storage
		limiter string
		cfg     limiter.RateConfig
		want    error
	}{
		{"nil storage", nil, "x", limiter.RateConfig{MaxExecutions: 1, WindowSizeInSeconds: 1}, limiter.ErrStorageRequired},
		{"empty name", store, "", limiter.RateConfig{MaxExecutions: 1, WindowSizeInSeconds: 1}, limiter.ErrNameRequired},
		{"zero max", store, "x", limiter.RateConfig{MaxExecutions: 0, WindowSizeInSeconds: 1}, limiter.ErrInvalidLimit},
		{"zero window", store, "x", limiter.RateConfig{MaxExecutions: 1, WindowSizeInSeconds: 0}, limiter.ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := limiter.NewRate(tt.storage, tt.limiter, tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRate_AdmitsAtMostMaxPerWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	r, err := limiter.NewRate(store, "api", limiter.RateConfig{MaxExecutions: 4, WindowSizeInSeconds: 1})
	require.NoError(t, err)

	admitted := 0
	for range 10 {
		ok, err := r.Acquire(ctx)
		require.NoError(t, err)
		if ok {
			admitted++
		}
	}
	assert.Equal(t, 4, admitted)

	ready, err := r.Ready(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestRate_ConcurrentAdmissionIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	// Two limiters with the same name behave like two servers sharing storage.
	a, err := limiter.NewRate(store, "shared", limiter.RateConfig{MaxExecutions: 5, WindowSizeInSeconds: 60})
	require.NoError(t, err)
	b, err := limiter.NewRate(store, "shared", limiter.RateConfig{MaxExecutions: 5, WindowSizeInSeconds: 60})
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := a
			if i%2 == 1 {
				l = b
			}
			if ok, _ := l.Acquire(ctx); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), admitted.Load())
}

func TestRate_WindowSlides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r, err := limiter.NewRate(store, "slide", limiter.RateConfig{MaxExecutions: 2, WindowSizeInSeconds: 10},
		limiter.WithClock(clock.Now))
	require.NoError(t, err)

	first := clock.Now()
	ok, _ := r.Acquire(ctx)
	require.True(t, ok)
	clock.Advance(4 * time.Second)
	ok, _ = r.Acquire(ctx)
	require.True(t, ok)

	ok, _ = r.Acquire(ctx)
	assert.False(t, ok)

	next, err := r.NextAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Add(10*time.Second), next)

	clock.Advance(6 * time.Second)
	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, _ = r.Acquire(ctx)
	assert.True(t, ok)

	require.NoError(t, r.Reset(ctx))
	n, _ = r.Count(ctx)
	assert.Zero(t, n)
}

func TestMemoryStorage_Closed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := limiter.NewMemoryStorage(limiter.WithCleanupInterval(time.Millisecond), limiter.WithRetention(time.Second))
	require.NoError(t, store.Record(ctx, "x", time.Now()))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Count(ctx, "x", time.Time{})
	assert.ErrorIs(t, err, limiter.ErrStorageClosed)
	_, err = store.RecordIfBelow(ctx, "x", time.Now(), time.Time{}, 1)
	assert.ErrorIs(t, err, limiter.ErrStorageClosed)
}

func TestMemoryStorage_Oldest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, "o", base.Add(3*time.Second)))
	require.NoError(t, store.Record(ctx, "o", base.Add(time.Second)))
	require.NoError(t, store.Record(ctx, "o", base.Add(2*time.Second)))

	oldest, ok, err := store.Oldest(ctx, "o", base.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base.Add(2*time.Second), oldest)

	_, ok, err = store.Oldest(ctx, "missing", base)
	require.NoError(t, err)
	assert.False(t, ok)
}
