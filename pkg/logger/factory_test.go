package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithTextFormatter())
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test")))
		log.Info("hello")
		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestContextWithAttrs(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))

	ctx := logger.ContextWithAttrs(context.Background(), logger.Queue("emails"))
	ctx = logger.ContextWithAttrs(ctx, logger.JobID("j1"))
	log.InfoContext(ctx, "processed")

	entry := decode(t, buf)
	assert.Equal(t, "emails", entry["queue"])
	assert.Equal(t, "j1", entry["job_id"])
	assert.Len(t, logger.AttrsFromContext(ctx), 2)
}

func TestWithContextExtractors(t *testing.T) {
	t.Parallel()

	type key struct{}
	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
			v, ok := ctx.Value(key{}).(string)
			return slog.String("trace", v), ok
		}),
	)

	log.InfoContext(context.WithValue(context.Background(), key{}, "abc"), "msg")
	assert.Equal(t, "abc", decode(t, buf)["trace"])
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit level overrides environment", func(t *testing.T) {
		buf := &bytes.Buffer{}
		opts := logger.FromConfig(logger.Config{
			Level:       "warn",
			Format:      "json",
			Environment: logger.EnvDevelopment,
			Service:     "jobkitd",
		})
		log := logger.New(append(opts, logger.WithOutput(buf))...)

		log.Info("dropped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		entry := decode(t, buf)
		assert.Equal(t, "jobkitd", entry["service"])
		assert.Equal(t, logger.EnvDevelopment, entry["env"])
	})

	t.Run("production defaults", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "svc"), logger.WithOutput(buf))
		log.Debug("dropped")
		log.Info("kept")
		entry := decode(t, buf)
		assert.Equal(t, logger.EnvProduction, entry["env"])
	})
}
