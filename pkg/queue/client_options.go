package queue

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	queue        string
	maxAttempts  int
	waitInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// WithClientQueueName sets the queue jobs are enqueued into.
func WithClientQueueName(name string) ClientOption {
	return func(o *clientOptions) {
		if name != "" {
			o.queue = name
		}
	}
}

// WithDefaultMaxAttempts sets the attempt limit of jobs enqueued without
// WithJobMaxAttempts.
func WithDefaultMaxAttempts(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithWaitInterval sets how often Wait polls the storage.
func WithWaitInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.waitInterval = d
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClientMetrics counts enqueued jobs in m.
func WithClientMetrics(m *Metrics) ClientOption {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// EnqueueOption configures a single job.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	id          uuid.UUID
	delay       time.Duration
	runAt       time.Time
	maxAttempts int
}

// WithDelay postpones the first execution by d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithRunAt postpones the first execution until t.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.runAt = t
	}
}

// WithJobMaxAttempts overrides the attempt limit for this job.
func WithJobMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithJobID sets the job ID instead of a random one.
func WithJobID(id uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) {
		o.id = id
	}
}
