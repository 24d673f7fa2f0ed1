package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func TestNewHandler(t *testing.T) {
	t.Parallel()

	h := queue.NewHandler(greet)

	out, err := h.Handle(context.Background(), json.RawMessage(`{"name":"bob"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello bob"}`, string(out))

	out, err = h.Handle(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello "}`, string(out))

	_, err = h.Handle(context.Background(), json.RawMessage(`"not an object"`))
	require.ErrorIs(t, err, queue.ErrInvalidInput)
	assert.True(t, failure.IsTerminal(err))
}

func TestNewHandler_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := queue.NewHandler(func(context.Context, struct{}) (int, error) { return 0, boom })
	_, err := failing.Handle(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.False(t, failure.IsTerminal(err))

	unencodable := queue.NewHandler(func(context.Context, struct{}) (float64, error) { return math.Inf(1), nil })
	_, err = unencodable.Handle(context.Background(), nil)
	require.ErrorIs(t, err, queue.ErrOutputMarshal)
	assert.True(t, failure.IsTerminal(err))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 200*time.Millisecond, b(2))
	assert.Equal(t, 400*time.Millisecond, b(3))
	assert.Equal(t, 800*time.Millisecond, b(4))
	assert.Equal(t, time.Second, b(5))
	assert.Equal(t, time.Second, b(50))

	assert.Equal(t, time.Second, queue.DefaultBackoff(1))
	assert.Equal(t, time.Minute, queue.DefaultBackoff(10))

	assert.Equal(t, time.Second, queue.ExponentialBackoff(0, 0)(3))
	assert.Equal(t, 5*time.Second, queue.ConstantBackoff(5*time.Second)(9))
}
