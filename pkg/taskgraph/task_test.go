package taskgraph_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/cleanup"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/taskgraph"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task := taskgraph.NewTask("embed", value(nil), taskgraph.WithInput("doc"))
	assert.NotEmpty(t, task.ID())
	assert.Equal(t, "embed", task.Kind())
	assert.Equal(t, "doc", task.Input())
	assert.Equal(t, taskgraph.StatusPending, task.Status())

	named := taskgraph.NewTask("embed", value(nil), taskgraph.WithID("fixed"))
	assert.Equal(t, "fixed", named.ID())
}

func TestTask_RunStandalone(t *testing.T) {
	t.Parallel()

	t.Run("returns output", func(t *testing.T) {
		task := taskgraph.NewTask("echo", taskgraph.RunnerFunc(func(_ context.Context, in taskgraph.Input) (any, error) {
			return in.Value, nil
		}), taskgraph.WithInput("hello"))

		out, err := task.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
		assert.Equal(t, taskgraph.StatusCompleted, task.Status())

		_, err = task.Run(context.Background())
		assert.ErrorIs(t, err, taskgraph.ErrTaskNotPending)
	})

	t.Run("cleanup runs on failure", func(t *testing.T) {
		boom := errors.New("boom")
		var cleaned atomic.Int32
		task := taskgraph.NewTask("fail", taskgraph.RunnerFunc(func(ctx context.Context, _ taskgraph.Input) (any, error) {
			_ = cleanup.Register(ctx, "k", func(context.Context) error {
				cleaned.Add(1)
				return nil
			})
			return nil, boom
		}))

		_, err := task.Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int32(1), cleaned.Load())
		assert.ErrorIs(t, task.Err(), boom)
		assert.Equal(t, taskgraph.StatusFailed, task.Status())
	})

	t.Run("abort on task", func(t *testing.T) {
		started := make(chan struct{})
		task := taskgraph.NewTask("wait", blockUntilCanceled(started))

		errCh := make(chan error, 1)
		go func() {
			_, err := task.Run(context.Background())
			errCh <- err
		}()
		<-started
		task.Abort()

		err := <-errCh
		assert.True(t, failure.IsAborted(err))
		assert.Equal(t, taskgraph.StatusAborted, task.Status())

		task.Abort()
		assert.Equal(t, taskgraph.StatusAborted, task.Status())
	})
}
