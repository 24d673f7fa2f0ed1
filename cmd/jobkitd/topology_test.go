package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/config"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

func TestLoadTopology(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		topo, err := loadTopology("testdata/topology.yaml")
		require.NoError(t, err)
		require.Len(t, topo.Queues, 2)
		require.Len(t, topo.Schedules, 1)

		emails := topo.Queues[0]
		assert.Equal(t, "emails", emails.Name)
		assert.Equal(t, "echo", emails.Handler)
		assert.Equal(t, 250*time.Millisecond, emails.PollInterval)
		assert.Equal(t, 4, emails.MaxConcurrent)
		assert.Equal(t, 8, emails.MaxPrefetch)
		assert.Equal(t, 5, emails.MaxAttempts)
		require.NotNil(t, emails.Rate)
		assert.Equal(t, limiter.RateConfig{MaxExecutions: 100, WindowSizeInSeconds: 60}, *emails.Rate)

		reports := topo.Queues[1]
		require.NotNil(t, reports.Local)
		assert.InDelta(t, 2.0, reports.Local.PerSecond, 0.0001)

		sched := topo.Schedules[0]
		assert.Equal(t, "reports", sched.Queue)
		assert.Equal(t, "daily 03:30", sched.At)
		assert.Equal(t, map[string]any{"duration": "1s"}, sched.Input)
	})

	t.Run("invalid entries are all reported", func(t *testing.T) {
		t.Parallel()

		_, err := loadTopology("testdata/invalid.yaml")
		require.Error(t, err)
		assert.True(t, failure.IsConfiguration(err))
		for _, want := range []string{
			`unknown handler "smtp"`,
			"queue emails defined twice",
			"negative limits",
			"queue #3 has no name",
			`unknown queue "missing"`,
			"schedule broken",
		} {
			assert.Contains(t, err.Error(), want)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		t.Parallel()

		_, err := loadTopology("testdata/unknown_field.yaml")
		require.ErrorIs(t, err, config.ErrParsingFile)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := loadTopology("testdata/nope.yaml")
		require.Error(t, err)
	})

	t.Run("empty topology", func(t *testing.T) {
		t.Parallel()

		err := (&topology{}).validate()
		require.ErrorIs(t, err, errInvalidTopology)
	})
}

func TestQueueSpecLimiters(t *testing.T) {
	t.Parallel()

	rates := limiter.NewMemoryStorage()
	t.Cleanup(func() { _ = rates.Close() })

	t.Run("defaults to a single slot", func(t *testing.T) {
		t.Parallel()

		ls, err := queueSpec{Name: "a"}.limiters(rates)
		require.NoError(t, err)
		require.Len(t, ls, 1)

		conc, ok := ls[0].(*limiter.Concurrency)
		require.True(t, ok)
		assert.Equal(t, 1, conc.MaxConcurrent())
		assert.Equal(t, 1, conc.Prefetch())
	})

	t.Run("prefetch follows concurrency", func(t *testing.T) {
		t.Parallel()

		ls, err := queueSpec{Name: "b", MaxConcurrent: 3}.limiters(rates)
		require.NoError(t, err)
		conc := ls[0].(*limiter.Concurrency)
		assert.Equal(t, 3, conc.Prefetch())
	})

	t.Run("full chain", func(t *testing.T) {
		t.Parallel()

		ls, err := queueSpec{
			Name:          "c",
			MaxConcurrent: 2,
			Rate:          &limiter.RateConfig{MaxExecutions: 10, WindowSizeInSeconds: 1},
			Local:         &localRateSpec{PerSecond: 5, Burst: 1},
		}.limiters(rates)
		require.NoError(t, err)
		require.Len(t, ls, 3)

		rate, ok := ls[1].(*limiter.Rate)
		require.True(t, ok)
		assert.Equal(t, "queue:c", rate.Name())
		assert.IsType(t, &limiter.Local{}, ls[2])
	})
}
