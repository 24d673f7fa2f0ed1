package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func TestNewQueue_RequiresName(t *testing.T) {
	t.Parallel()

	_, err := queue.NewQueue("", queue.NewMemoryStorage(), queue.NewHandler(greet), nil)
	assert.ErrorIs(t, err, queue.ErrQueueNameEmpty)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry(queue.WithRegistryLogger(quietLogger()))
	storage := queue.NewMemoryStorage()

	emails, err := queue.NewQueue("emails", storage, queue.NewHandler(greet), nil)
	require.NoError(t, err)
	reports, err := queue.NewQueue("reports", storage, queue.NewHandler(greet), nil)
	require.NoError(t, err)

	require.NoError(t, reg.Register(reports))
	require.NoError(t, reg.Register(emails))
	assert.ErrorIs(t, reg.Register(emails), queue.ErrQueueRegistered)
	assert.ErrorIs(t, reg.Register(nil), queue.ErrQueueNameEmpty)

	assert.Equal(t, []string{"emails", "reports"}, reg.Names())

	got, err := reg.Get("emails")
	require.NoError(t, err)
	assert.Same(t, emails, got)
	assert.Equal(t, "emails", got.Server.Queue())
	assert.Equal(t, "emails", got.Client.Queue())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
	assert.ErrorIs(t, reg.Stop(context.Background(), "missing", queue.StopDrain), queue.ErrQueueNotFound)
}

func TestRegistry_Lifecycle(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry(queue.WithRegistryLogger(quietLogger()))
	storage := queue.NewMemoryStorage()

	var queues []*queue.Queue
	for _, name := range []string{"a", "b", "c"} {
		q, err := queue.NewQueue(name, storage, queue.NewHandler(greet),
			[]queue.ServerOption{queue.WithPollInterval(10 * time.Millisecond), queue.WithServerLogger(quietLogger())},
			queue.WithClientLogger(quietLogger()), queue.WithWaitInterval(5*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, reg.Register(q))
		queues = append(queues, q)
	}

	require.NoError(t, reg.StartAll(context.Background()))
	// Starting again skips running servers.
	require.NoError(t, reg.StartAll(context.Background()))

	ctx := waitCtx(t)
	for _, q := range queues {
		job, err := q.Client.Enqueue(ctx, greetInput{Name: q.Name})
		require.NoError(t, err)
		done, err := q.Client.Wait(ctx, job.ID)
		require.NoError(t, err)
		out, err := queue.Result[greetOutput](done)
		require.NoError(t, err)
		assert.Equal(t, "hello "+q.Name, out.Greeting)
	}

	require.NoError(t, reg.Stop(ctx, "a", queue.StopDrain))
	require.NoError(t, reg.Clear(ctx, queue.StopDrain))
	assert.Empty(t, reg.Names())
	for _, q := range queues {
		q.Server.Wait()
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry()
	q, err := queue.NewQueue("x", queue.NewMemoryStorage(), queue.NewHandler(greet), nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(q))

	reg.Reset()
	assert.Empty(t, reg.Names())
	require.NoError(t, reg.Register(q))
}

// Not parallel: mutates the process-wide registry.
func TestRegistry_Default(t *testing.T) {
	original := queue.Default()
	t.Cleanup(func() { queue.SetDefault(original) })

	custom := queue.NewRegistry()
	prev := queue.SetDefault(custom)
	assert.Same(t, original, prev)
	assert.Same(t, custom, queue.Default())

	queue.ResetDefault()
	assert.NotSame(t, custom, queue.Default())
	assert.Empty(t, queue.Default().Names())

	queue.SetDefault(nil)
	assert.NotNil(t, queue.Default())
}

func TestRegistry_FromContext(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry()
	ctx := queue.WithRegistry(context.Background(), reg)
	assert.Same(t, reg, queue.FromContext(ctx))
	assert.NotNil(t, queue.FromContext(context.Background()))
}
