package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/queue"
	"github.com/dmitrymomot/jobkit/pkg/taskgraph"
)

func TestTaskRunner_InGraph(t *testing.T) {
	t.Parallel()

	double := queue.NewHandler(func(_ context.Context, in struct {
		N int `json:"n"`
	}) (int, error) {
		return in.N * 2, nil
	})
	q := newQueue(t, queue.NewMemoryStorage(), double)
	startQueue(t, q)

	produce := taskgraph.NewTask("produce", taskgraph.RunnerFunc(func(context.Context, taskgraph.Input) (any, error) {
		return 21, nil
	}))
	remote := taskgraph.NewTask("double", queue.TaskRunner(q.Client))

	g := taskgraph.New(taskgraph.WithLogger(quietLogger()))
	require.NoError(t, g.AddTask(produce))
	require.NoError(t, g.AddTask(remote, taskgraph.Bind(produce, "n")))

	ctx := waitCtx(t)
	outputs, err := g.Run(ctx)
	require.NoError(t, err)

	raw, ok := outputs[remote.ID()].(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `42`, string(raw))
	assert.Equal(t, taskgraph.StatusCompleted, remote.Status())
}

func TestTaskRunner_FailedJobIsTerminal(t *testing.T) {
	t.Parallel()

	q := newQueue(t, queue.NewMemoryStorage(), queue.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("nope")
	}))
	startQueue(t, q)

	task := taskgraph.NewTask("remote", queue.TaskRunner(q.Client, queue.WithJobMaxAttempts(1)), taskgraph.WithInput("x"))
	_, err := task.Run(waitCtx(t), taskgraph.WithLogger(quietLogger()))
	require.ErrorIs(t, err, queue.ErrJobFailed)
	assert.True(t, failure.IsTerminal(err))
	assert.Equal(t, taskgraph.StatusFailed, task.Status())
}

func TestTaskRunner_AbortStopsWaiting(t *testing.T) {
	t.Parallel()

	// No server: the job never settles.
	client, err := queue.NewClient(queue.NewMemoryStorage(),
		queue.WithClientLogger(quietLogger()), queue.WithWaitInterval(time.Millisecond))
	require.NoError(t, err)

	task := taskgraph.NewTask("remote", queue.TaskRunner(client))
	go func() {
		assert.Eventually(t, func() bool { return task.Status() == taskgraph.StatusRunning }, time.Second, time.Millisecond)
		task.Abort()
	}()

	_, err = task.Run(waitCtx(t), taskgraph.WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, failure.IsAborted(err))
	assert.Equal(t, taskgraph.StatusAborted, task.Status())

	n, err := client.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTaskRunner_WithoutClient(t *testing.T) {
	t.Parallel()

	_, err := queue.TaskRunner(nil).Run(context.Background(), taskgraph.Input{})
	assert.True(t, failure.IsConfiguration(err))
}
