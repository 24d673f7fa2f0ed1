package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

type notifyCounter struct{ n int }

func (c *notifyCounter) Notify() { c.n++ }

func TestClient_EnqueueDefaults(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	client, err := queue.NewClient(storage, queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultQueueName, client.Queue())

	job, err := client.Enqueue(context.Background(), map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultQueueName, job.Queue)
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Equal(t, queue.DefaultMaxAttempts, job.MaxAttempts)
	assert.JSONEq(t, `{"n":1}`, string(job.Input))

	got, err := client.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestClient_EnqueueOptions(t *testing.T) {
	t.Parallel()

	client, err := queue.NewClient(queue.NewMemoryStorage(),
		queue.WithClientQueueName("mail"),
		queue.WithDefaultMaxAttempts(7),
		queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)

	id := uuid.New()
	runAt := time.Now().Add(time.Hour).UTC()
	job, err := client.Enqueue(context.Background(), nil,
		queue.WithJobID(id),
		queue.WithRunAt(runAt),
		queue.WithJobMaxAttempts(2))
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "mail", job.Queue)
	assert.Equal(t, 2, job.MaxAttempts)
	assert.WithinDuration(t, runAt, job.RunAt, time.Millisecond)

	delayed, err := client.Enqueue(context.Background(), nil, queue.WithDelay(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 7, delayed.MaxAttempts)
	assert.True(t, delayed.RunAt.After(time.Now().Add(50*time.Second)))
}

func TestClient_EnqueueDuplicateID(t *testing.T) {
	t.Parallel()

	client, err := queue.NewClient(queue.NewMemoryStorage(), queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)

	id := uuid.New()
	_, err = client.Enqueue(context.Background(), nil, queue.WithJobID(id))
	require.NoError(t, err)
	_, err = client.Enqueue(context.Background(), nil, queue.WithJobID(id))
	assert.ErrorIs(t, err, queue.ErrJobExists)
}

func TestClient_EnqueueRejectsBadInput(t *testing.T) {
	t.Parallel()

	client, err := queue.NewClient(queue.NewMemoryStorage(), queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)

	_, err = client.Enqueue(context.Background(), json.RawMessage(`{broken`))
	require.ErrorIs(t, err, queue.ErrInputMarshal)

	_, err = client.Enqueue(context.Background(), make(chan int))
	require.ErrorIs(t, err, queue.ErrInputMarshal)

	n, err := client.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_NotifiesOnlyForImmediateJobs(t *testing.T) {
	t.Parallel()

	client, err := queue.NewClient(queue.NewMemoryStorage(), queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)
	counter := &notifyCounter{}
	client.Attach(counter)
	client.Attach(nil)

	_, err = client.Enqueue(context.Background(), nil)
	require.NoError(t, err)
	_, err = client.Enqueue(context.Background(), nil, queue.WithDelay(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, counter.n)
}

func TestClient_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	client, err := queue.NewClient(queue.NewMemoryStorage(),
		queue.WithClientLogger(quietLogger()),
		queue.WithWaitInterval(time.Millisecond))
	require.NoError(t, err)

	job, err := client.Enqueue(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := client.Wait(ctx, job.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, queue.StatusPending, got.Status)

	_, err = client.Wait(context.Background(), uuid.New())
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}

func TestResult(t *testing.T) {
	t.Parallel()

	_, err := queue.Result[int](nil)
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	pending := queue.NewJob("q", nil, 1, time.Time{})
	_, err = queue.Result[int](pending)
	assert.Error(t, err)

	done := pending.Clone()
	done.Status = queue.StatusCompleted
	done.Output = json.RawMessage(`42`)
	v, err := queue.Result[int](done)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = queue.Result[string](done)
	assert.Error(t, err)
}
