package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue name is configured.
const DefaultQueueName = "default"

// DefaultMaxAttempts bounds executions of a job whose errors are transient.
const DefaultMaxAttempts = 3

// JobStatus is the persisted state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
)

// Terminal reports whether the job will never run again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a persisted request to execute a handler with a JSON input.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Seq         int64           `json:"seq"`
	RunAt       time.Time       `json:"run_at"`
	LockedBy    string          `json:"locked_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// NewJob builds a pending job for queue.
func NewJob(queue string, input json.RawMessage, maxAttempts int, runAt time.Time) *Job {
	now := time.Now().UTC()
	if runAt.IsZero() {
		runAt = now
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Job{
		ID:          uuid.New(),
		Queue:       queue,
		Input:       input,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		RunAt:       runAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Claimable reports whether a worker may take the job at now.
func (j *Job) Claimable(now time.Time) bool {
	return (j.Status == StatusPending || j.Status == StatusRetrying) &&
		!j.RunAt.After(now) &&
		j.Attempts < j.MaxAttempts
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	c.Input = cloneBytes(j.Input)
	c.Output = cloneBytes(j.Output)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
