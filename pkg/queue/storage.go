package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists jobs. One storage is authoritative per queue; Claim must be
// atomic so a job is handed to at most one worker.
type Storage interface {
	// Setup prepares the backend (schema, indexes). It must be idempotent.
	Setup(ctx context.Context) error

	// Enqueue stores a pending job and assigns job.Seq in creation order.
	Enqueue(ctx context.Context, job *Job) error

	// Claim moves the eligible job with the lowest Seq to processing and
	// returns it. Eligible means pending or retrying, RunAt <= now and
	// Attempts < MaxAttempts. Returns ErrNoJobToClaim when none qualifies.
	Claim(ctx context.Context, queue, workerID string, now time.Time) (*Job, error)

	// Complete marks a processing job completed and stores its output.
	Complete(ctx context.Context, id uuid.UUID, output []byte) error

	// Retry counts a failed attempt and schedules the job again at runAt.
	Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error

	// Fail counts a failed attempt and marks the job failed for good.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// Release returns a processing job to pending without counting an attempt.
	Release(ctx context.Context, id uuid.UUID) error

	// Get returns the job with the given ID or ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// Size counts jobs of queue that are not completed or failed.
	Size(ctx context.Context, queue string) (int, error)

	// DeleteAll removes every job of queue.
	DeleteAll(ctx context.Context, queue string) error
}
