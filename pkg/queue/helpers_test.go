package queue_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newQueue(t *testing.T, storage queue.Storage, handler queue.Handler, opts ...queue.ServerOption) *queue.Queue {
	t.Helper()

	base := []queue.ServerOption{
		queue.WithPollInterval(10 * time.Millisecond),
		queue.WithServerLogger(quietLogger()),
		queue.WithBackoff(queue.ConstantBackoff(time.Millisecond)),
	}
	q, err := queue.NewQueue(t.Name(), storage, handler, append(base, opts...),
		queue.WithClientLogger(quietLogger()),
		queue.WithWaitInterval(5*time.Millisecond))
	require.NoError(t, err)
	return q
}

func startQueue(t *testing.T, q *queue.Queue) {
	t.Helper()
	require.NoError(t, q.Server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Server.Stop(ctx, queue.StopAbort)
		q.Server.Wait()
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
