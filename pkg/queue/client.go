package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Notifier is woken after a job is enqueued. *Server implements it.
type Notifier interface {
	Notify()
}

// Client submits jobs to a queue and inspects their state.
type Client struct {
	storage      Storage
	queue        string
	maxAttempts  int
	waitInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewClient creates a client for the default queue unless
// WithClientQueueName is given.
func NewClient(storage Storage, opts ...ClientOption) (*Client, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	o := &clientOptions{
		queue:        DefaultQueueName,
		maxAttempts:  DefaultMaxAttempts,
		waitInterval: 100 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Client{
		storage:      storage,
		queue:        o.queue,
		maxAttempts:  o.maxAttempts,
		waitInterval: o.waitInterval,
		logger:       o.logger.With(logger.Component("queue.client"), logger.Queue(o.queue)),
		metrics:      o.metrics,
	}, nil
}

// Queue returns the name of the queue jobs are enqueued into.
func (c *Client) Queue() string { return c.queue }

// Attach makes Enqueue wake n immediately instead of waiting for its next poll.
func (c *Client) Attach(n Notifier) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifiers = append(c.notifiers, n)
}

// Enqueue stores a new pending job. input is encoded as JSON unless it
// already is a json.RawMessage or []byte.
func (c *Client) Enqueue(ctx context.Context, input any, opts ...EnqueueOption) (*Job, error) {
	o := &enqueueOptions{maxAttempts: c.maxAttempts}
	for _, opt := range opts {
		opt(o)
	}

	raw, err := encodeInput(input)
	if err != nil {
		return nil, err
	}

	runAt := o.runAt
	if o.delay > 0 {
		runAt = time.Now().Add(o.delay)
	}
	job := NewJob(c.queue, raw, o.maxAttempts, runAt)
	if o.id != uuid.Nil {
		job.ID = o.id
	}

	if err := c.storage.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job into %s: %w", c.queue, err)
	}
	c.metrics.jobEnqueued(c.queue)
	c.logger.DebugContext(ctx, "job enqueued",
		logger.JobID(job.ID),
		slog.Int64("seq", job.Seq),
		slog.Time("run_at", job.RunAt))

	if !job.RunAt.After(time.Now()) {
		c.mu.RLock()
		for _, n := range c.notifiers {
			n.Notify()
		}
		c.mu.RUnlock()
	}
	return job, nil
}

func encodeInput(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrInputMarshal)
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrInputMarshal)
		}
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInputMarshal, err)
		}
		return data, nil
	}
}

// Size returns the number of jobs that are not completed or failed.
func (c *Client) Size(ctx context.Context) (int, error) {
	return c.storage.Size(ctx, c.queue)
}

// Get returns a job by ID.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	return c.storage.Get(ctx, id)
}

// Wait polls until the job completes or fails. A failed job is returned with
// an error wrapping ErrJobFailed and the job's error message.
func (c *Client) Wait(ctx context.Context, id uuid.UUID) (*Job, error) {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()

	for {
		job, err := c.storage.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case StatusCompleted:
			return job, nil
		case StatusFailed:
			return job, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
		}

		select {
		case <-ctx.Done():
			return job, context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// Result decodes the output of a completed job.
func Result[T any](job *Job) (T, error) {
	var out T
	if job == nil {
		return out, ErrJobNotFound
	}
	if job.Status != StatusCompleted {
		return out, fmt.Errorf("job %s is %s", job.ID, job.Status)
	}
	if len(job.Output) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(job.Output, &out); err != nil {
		return out, fmt.Errorf("decode output of job %s: %w", job.ID, err)
	}
	return out, nil
}
