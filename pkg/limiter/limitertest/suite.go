// Package limitertest holds a conformance suite shared by limiter.Storage
// implementations.
package limitertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

// Factory returns a ready storage.
type Factory func(t *testing.T) limiter.Storage

// RunStorageSuite checks the Storage contract against newStorage. Every
// subtest uses a fresh limiter name so storages may be shared.
func RunStorageSuite(t *testing.T, newStorage Factory) {
	t.Helper()

	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("count is strictly after since", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		name := limiterName()

		for i := range 3 {
			require.NoError(t, s.Record(ctx, name, base.Add(time.Duration(i)*time.Second)))
		}

		n, err := s.Count(ctx, name, base.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = s.Count(ctx, name, base)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Count(ctx, limiterName(), base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("record if below", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		name := limiterName()
		since := base.Add(-time.Minute)

		for i := range 2 {
			ok, err := s.RecordIfBelow(ctx, name, base.Add(time.Duration(i)*time.Millisecond), since, 2)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := s.RecordIfBelow(ctx, name, base.Add(5*time.Millisecond), since, 2)
		require.NoError(t, err)
		assert.False(t, ok)

		// A later window no longer sees the first start.
		ok, err = s.RecordIfBelow(ctx, name, base.Add(10*time.Millisecond), base, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("oldest", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		name := limiterName()

		_, ok, err := s.Oldest(ctx, name, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Record(ctx, name, base.Add(2*time.Second)))
		require.NoError(t, s.Record(ctx, name, base.Add(time.Second)))

		oldest, ok, err := s.Oldest(ctx, name, base)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, oldest.Equal(base.Add(time.Second)), "got %s", oldest)

		oldest, ok, err = s.Oldest(ctx, name, base.Add(time.Second))
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, oldest.Equal(base.Add(2*time.Second)), "got %s", oldest)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		name := limiterName()

		require.NoError(t, s.Record(ctx, name, base))
		require.NoError(t, s.Clear(ctx, name))
		n, err := s.Count(ctx, name, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("record if below is atomic", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		name := limiterName()
		since := base.Add(-time.Minute)

		var admitted atomic.Int32
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.RecordIfBelow(ctx, name, base.Add(time.Duration(i)*time.Millisecond), since, 5)
				if assert.NoError(t, err) && ok {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(5), admitted.Load())
	})
}

func limiterName() string {
	return "rate-" + uuid.NewString()[:8]
}
