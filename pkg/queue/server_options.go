package queue

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	queue           string
	workerID        string
	limiters        []limiter.Limiter
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	backoff         Backoff
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
}

// WithQueueName sets the queue the server draws from.
func WithQueueName(name string) ServerOption {
	return func(o *serverOptions) {
		if name != "" {
			o.queue = name
		}
	}
}

// WithWorkerID sets the identity recorded as LockedBy on claimed jobs.
func WithWorkerID(id string) ServerOption {
	return func(o *serverOptions) {
		if id != "" {
			o.workerID = id
		}
	}
}

// WithLimiters sets admission limiters. Without any, the server runs one job
// at a time.
func WithLimiters(limiters ...limiter.Limiter) ServerOption {
	return func(o *serverOptions) {
		o.limiters = append(o.limiters, limiters...)
	}
}

// WithPollInterval sets the sleep between poll cycles.
func WithPollInterval(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithShutdownTimeout bounds the drain performed by Run when its context ends.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithBackoff sets the retry delay curve.
func WithBackoff(b Backoff) ServerOption {
	return func(o *serverOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithServerMetrics records job outcomes in m.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for per-job spans. Defaults to the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) ServerOption {
	return func(o *serverOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}
