// Package queuetest holds a conformance suite shared by queue.Storage
// implementations.
package queuetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

// Factory returns a ready storage. Each call must be isolated from the others,
// for example by using a fresh database or key prefix.
type Factory func(t *testing.T) queue.Storage

// RunStorageSuite checks the Storage contract against newStorage.
func RunStorageSuite(t *testing.T, newStorage Factory) {
	t.Helper()

	t.Run("enqueue assigns increasing seq", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		first := queue.NewJob(q, json.RawMessage(`{"n":1}`), 3, time.Time{})
		second := queue.NewJob(q, json.RawMessage(`{"n":2}`), 3, time.Time{})
		require.NoError(t, s.Enqueue(ctx, first))
		require.NoError(t, s.Enqueue(ctx, second))
		assert.Greater(t, second.Seq, first.Seq)

		got, err := s.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, got.Status)
		assert.JSONEq(t, `{"n":1}`, string(got.Input))
		assert.Equal(t, first.Seq, got.Seq)
	})

	t.Run("claim is FIFO by seq", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		var ids []uuid.UUID
		for i := range 3 {
			job := queue.NewJob(q, json.RawMessage(fmt.Sprintf(`%d`, i)), 3, time.Time{})
			require.NoError(t, s.Enqueue(ctx, job))
			ids = append(ids, job.ID)
		}

		for _, want := range ids {
			job, err := s.Claim(ctx, q, "w1", time.Now())
			require.NoError(t, err)
			assert.Equal(t, want, job.ID)
			assert.Equal(t, queue.StatusProcessing, job.Status)
			assert.Equal(t, "w1", job.LockedBy)
		}

		_, err := s.Claim(ctx, q, "w1", time.Now())
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("claim skips future and other queues", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		later := queue.NewJob(q, nil, 3, time.Now().Add(time.Hour))
		other := queue.NewJob(q+"-other", nil, 3, time.Time{})
		require.NoError(t, s.Enqueue(ctx, later))
		require.NoError(t, s.Enqueue(ctx, other))

		_, err := s.Claim(ctx, q, "w1", time.Now())
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

		job, err := s.Claim(ctx, q, "w1", time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, later.ID, job.ID)
	})

	t.Run("complete stores output", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		job := queue.NewJob(q, json.RawMessage(`"in"`), 3, time.Time{})
		require.NoError(t, s.Enqueue(ctx, job))
		_, err := s.Claim(ctx, q, "w1", time.Now())
		require.NoError(t, err)

		require.NoError(t, s.Complete(ctx, job.ID, []byte(`{"ok":true}`)))
		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, got.Status)
		assert.JSONEq(t, `{"ok":true}`, string(got.Output))
		assert.Empty(t, got.LockedBy)

		assert.ErrorIs(t, s.Complete(ctx, job.ID, nil), queue.ErrJobNotProcessing)
	})

	t.Run("retry counts attempt and delays", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		job := queue.NewJob(q, nil, 2, time.Time{})
		require.NoError(t, s.Enqueue(ctx, job))
		_, err := s.Claim(ctx, q, "w1", time.Now())
		require.NoError(t, err)

		runAt := time.Now().Add(time.Minute)
		require.NoError(t, s.Retry(ctx, job.ID, "boom", runAt))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusRetrying, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, "boom", got.Error)

		_, err = s.Claim(ctx, q, "w1", time.Now())
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

		again, err := s.Claim(ctx, q, "w1", runAt.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)

		require.NoError(t, s.Fail(ctx, job.ID, "boom again"))
		got, err = s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, got.Status)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("release keeps attempts", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		job := queue.NewJob(q, nil, 3, time.Time{})
		require.NoError(t, s.Enqueue(ctx, job))
		_, err := s.Claim(ctx, q, "w1", time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Release(ctx, job.ID))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, got.Status)
		assert.Zero(t, got.Attempts)

		again, err := s.Claim(ctx, q, "w2", time.Now())
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)
	})

	t.Run("size counts non-terminal jobs", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		for range 3 {
			require.NoError(t, s.Enqueue(ctx, queue.NewJob(q, nil, 3, time.Time{})))
		}
		n, err := s.Size(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		job, err := s.Claim(ctx, q, "w1", time.Now())
		require.NoError(t, err)
		n, _ = s.Size(ctx, q)
		assert.Equal(t, 3, n)

		require.NoError(t, s.Complete(ctx, job.ID, nil))
		n, _ = s.Size(ctx, q)
		assert.Equal(t, 2, n)

		require.NoError(t, s.DeleteAll(ctx, q))
		n, _ = s.Size(ctx, q)
		assert.Zero(t, n)
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Get(context.Background(), uuid.New())
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("concurrent claims hand out each job once", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		q := queueName(t)

		const jobs = 20
		for range jobs {
			require.NoError(t, s.Enqueue(ctx, queue.NewJob(q, nil, 3, time.Time{})))
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for w := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := s.Claim(ctx, q, fmt.Sprintf("w%d", w), time.Now())
					if err != nil {
						return
					}
					mu.Lock()
					seen[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, jobs)
		for id, n := range seen {
			assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
		}
	})
}

func queueName(t *testing.T) string {
	return "q-" + uuid.NewString()[:8]
}
