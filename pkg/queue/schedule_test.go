package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 5, 10, 14, 20, 0, 0, time.UTC)

	tests := []struct {
		in   string
		next time.Time
	}{
		{"every 5m", from.Add(5 * time.Minute)},
		{"hourly :15", time.Date(2024, 5, 10, 15, 15, 0, 0, time.UTC)},
		{"hourly :45", time.Date(2024, 5, 10, 14, 45, 0, 0, time.UTC)},
		{"daily 03:30", time.Date(2024, 5, 11, 3, 30, 0, 0, time.UTC)},
		{"daily 18:00", time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			s, err := queue.ParseSchedule(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.next, s.Next(from))

			again, err := queue.ParseSchedule(s.String())
			require.NoError(t, err)
			assert.Equal(t, tt.next, again.Next(from))
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "every", "every -1s", "every soon", "hourly 15", "hourly :75", "daily 25:00", "weekly mon"} {
		_, err := queue.ParseSchedule(in)
		assert.ErrorIs(t, err, queue.ErrInvalidSchedule, in)
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	client, err := queue.NewClient(queue.NewMemoryStorage(), queue.WithClientLogger(quietLogger()))
	require.NoError(t, err)

	s := queue.NewScheduler(queue.WithSchedulerClock(clock.Now), queue.WithSchedulerLogger(quietLogger()))
	require.NoError(t, s.Add("report", client, queue.Every(time.Minute), map[string]string{"kind": "daily"}))
	assert.ErrorIs(t, s.Add("report", client, queue.Every(time.Minute), nil), queue.ErrScheduleRegistered)
	assert.ErrorIs(t, s.Add("stuck", client, queue.Every(0), nil), queue.ErrInvalidSchedule)
	assert.ErrorIs(t, s.Add("", client, queue.Every(time.Minute), nil), queue.ErrInvalidSchedule)
	assert.Equal(t, []string{"report"}, s.Names())

	ctx := context.Background()
	size := func() int {
		n, err := client.Size(ctx)
		require.NoError(t, err)
		return n
	}

	s.Tick(ctx)
	assert.Equal(t, 0, size())

	clock.Advance(time.Minute)
	s.Tick(ctx)
	assert.Equal(t, 1, size())

	s.Tick(ctx)
	assert.Equal(t, 1, size(), "same instant is not enqueued twice")

	// Ten missed runs collapse into one.
	clock.Advance(10 * time.Minute)
	s.Tick(ctx)
	assert.Equal(t, 2, size())

	s.Remove("report")
	clock.Advance(time.Hour)
	s.Tick(ctx)
	assert.Equal(t, 2, size())
	assert.Empty(t, s.Names())
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	s := queue.NewScheduler(queue.WithCheckInterval(time.Millisecond), queue.WithSchedulerLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}
