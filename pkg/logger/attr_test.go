package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("job", slog.String("id", "1"), slog.Int("attempt", 2))
	require.Equal(t, "job", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "attempt", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"job id", logger.JobID("j1"), "job_id", "j1"},
		{"queue", logger.Queue("emails"), "queue", "emails"},
		{"task id", logger.TaskID("t1"), "task_id", "t1"},
		{"task kind", logger.TaskKind("resize"), "task_kind", "resize"},
		{"graph id", logger.GraphID("g1"), "graph_id", "g1"},
		{"worker id", logger.WorkerID("w1"), "worker_id", "w1"},
		{"attempt", logger.Attempt(3), "attempt", int64(3)},
		{"cleanup key", logger.CleanupKey("tmp"), "cleanup_key", "tmp"},
		{"duration", logger.Duration(time.Second), "duration", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}

	assert.True(t, logger.JobID(nil).Equal(slog.Attr{}))
}
