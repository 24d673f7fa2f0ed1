package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in process memory for tests and local
// development. Jobs are lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	seq     int64
	jobs    map[uuid.UUID]*Job
	byQueue map[string][]uuid.UUID // ordered by Seq
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:    make(map[uuid.UUID]*Job),
		byQueue: make(map[string][]uuid.UUID),
	}
}

// Setup implements Storage.
func (ms *MemoryStorage) Setup(context.Context) error { return nil }

// Enqueue implements Storage.
func (ms *MemoryStorage) Enqueue(_ context.Context, job *Job) error {
	if job == nil {
		return ErrJobNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	ms.seq++
	job.Seq = ms.seq

	ms.jobs[job.ID] = job.Clone()
	ms.byQueue[job.Queue] = append(ms.byQueue[job.Queue], job.ID)
	return nil
}

// Claim implements Storage.
func (ms *MemoryStorage) Claim(_ context.Context, queue, workerID string, now time.Time) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, id := range ms.byQueue[queue] {
		job := ms.jobs[id]
		if !job.Claimable(now) {
			continue
		}
		started := now.UTC()
		job.Status = StatusProcessing
		job.LockedBy = workerID
		job.StartedAt = &started
		job.UpdatedAt = started
		return job.Clone(), nil
	}
	return nil, ErrNoJobToClaim
}

// Complete implements Storage.
func (ms *MemoryStorage) Complete(_ context.Context, id uuid.UUID, output []byte) error {
	return ms.settle(id, func(job *Job, now time.Time) {
		job.Status = StatusCompleted
		job.Output = cloneBytes(output)
		job.Error = ""
		job.FinishedAt = &now
	})
}

// Retry implements Storage.
func (ms *MemoryStorage) Retry(_ context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return ms.settle(id, func(job *Job, _ time.Time) {
		job.Attempts++
		job.Status = StatusRetrying
		job.Error = errMsg
		job.RunAt = runAt.UTC()
	})
}

// Fail implements Storage.
func (ms *MemoryStorage) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	return ms.settle(id, func(job *Job, now time.Time) {
		job.Attempts++
		job.Status = StatusFailed
		job.Error = errMsg
		job.FinishedAt = &now
	})
}

// Release implements Storage.
func (ms *MemoryStorage) Release(_ context.Context, id uuid.UUID) error {
	return ms.settle(id, func(job *Job, _ time.Time) {
		job.Status = StatusPending
		job.StartedAt = nil
	})
}

func (ms *MemoryStorage) settle(id uuid.UUID, apply func(*Job, time.Time)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != StatusProcessing {
		return fmt.Errorf("%w: %s is %s", ErrJobNotProcessing, id, job.Status)
	}
	now := time.Now().UTC()
	apply(job, now)
	job.LockedBy = ""
	job.UpdatedAt = now
	return nil
}

// Get implements Storage.
func (ms *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	job, ok := ms.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// Size implements Storage.
func (ms *MemoryStorage) Size(_ context.Context, queue string) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	n := 0
	for _, id := range ms.byQueue[queue] {
		if !ms.jobs[id].Status.Terminal() {
			n++
		}
	}
	return n, nil
}

// DeleteAll implements Storage.
func (ms *MemoryStorage) DeleteAll(_ context.Context, queue string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, id := range ms.byQueue[queue] {
		delete(ms.jobs, id)
	}
	delete(ms.byQueue, queue)
	return nil
}

// Jobs returns copies of every job in queue ordered by Seq.
func (ms *MemoryStorage) Jobs(queue string) []*Job {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*Job, 0, len(ms.byQueue[queue]))
	for _, id := range ms.byQueue[queue] {
		out = append(out, ms.jobs[id].Clone())
	}
	return out
}
