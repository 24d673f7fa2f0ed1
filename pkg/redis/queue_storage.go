package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

// QueueStorage keeps jobs in Redis hashes. See the package documentation for
// the key layout.
type QueueStorage struct {
	client redis.UniversalClient
	prefix string
}

// NewQueueStorage wraps client. An empty prefix defaults to "jobkit".
func NewQueueStorage(client redis.UniversalClient, prefix string) *QueueStorage {
	if prefix == "" {
		prefix = "jobkit"
	}
	return &QueueStorage{client: client, prefix: prefix}
}

var _ queue.Storage = (*QueueStorage)(nil)

func (s *QueueStorage) jobPrefix() string            { return s.prefix + ":job:" }
func (s *QueueStorage) jobKey(id uuid.UUID) string   { return s.jobPrefix() + id.String() }
func (s *QueueStorage) readyKey(queue string) string { return s.prefix + ":queue:" + queue + ":ready" }
func (s *QueueStorage) setKey(queue string) string   { return s.prefix + ":queue:" + queue + ":jobs" }
func (s *QueueStorage) seqKey() string               { return s.prefix + ":seq" }

// Setup checks connectivity; Redis needs no schema.
func (s *QueueStorage) Setup(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Enqueue implements queue.Storage.
func (s *QueueStorage) Enqueue(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	seq, err := enqueueScript.Run(ctx, s.client,
		[]string{s.jobKey(job.ID), s.readyKey(job.Queue), s.setKey(job.Queue), s.seqKey()},
		job.ID.String(), job.Queue, string(job.Input), string(job.Status),
		job.Attempts, job.MaxAttempts,
		job.RunAt.UnixMicro(), job.CreatedAt.UnixMicro(), job.UpdatedAt.UnixMicro(),
	).Int64()
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	if seq < 0 {
		return fmt.Errorf("%w: %s", queue.ErrJobExists, job.ID)
	}
	job.Seq = seq
	return nil
}

// Claim implements queue.Storage.
func (s *QueueStorage) Claim(ctx context.Context, queueName, workerID string, now time.Time) (*queue.Job, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{s.readyKey(queueName)},
		now.UnixMicro(), workerID, time.Now().UnixMicro(), s.jobPrefix(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, queue.ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return decodeJob(fields)
}

// Complete implements queue.Storage.
func (s *QueueStorage) Complete(ctx context.Context, id uuid.UUID, output []byte) error {
	return s.settle(ctx, id, "complete", string(output), time.Time{})
}

// Retry implements queue.Storage.
func (s *QueueStorage) Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return s.settle(ctx, id, "retry", errMsg, runAt)
}

// Fail implements queue.Storage.
func (s *QueueStorage) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.settle(ctx, id, "fail", errMsg, time.Time{})
}

// Release implements queue.Storage.
func (s *QueueStorage) Release(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, "release", "", time.Time{})
}

func (s *QueueStorage) settle(ctx context.Context, id uuid.UUID, op, payload string, runAt time.Time) error {
	queueName, err := s.client.HGet(ctx, s.jobKey(id), "queue").Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}

	res, err := settleScript.Run(ctx, s.client,
		[]string{s.jobKey(id), s.readyKey(queueName)},
		op, time.Now().UnixMicro(), payload, runAt.UnixMicro(),
	).Result()
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}

	switch v := res.(type) {
	case int64:
		if v == 1 {
			return nil
		}
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	case string:
		return fmt.Errorf("%w: %s is %s", queue.ErrJobNotProcessing, id, v)
	default:
		return fmt.Errorf("%s job %s: unexpected script reply %v", op, id, res)
	}
}

// Get implements queue.Storage.
func (s *QueueStorage) Get(ctx context.Context, id uuid.UUID) (*queue.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return decodeJob(fields)
}

// Size implements queue.Storage.
func (s *QueueStorage) Size(ctx context.Context, queueName string) (int, error) {
	n, err := sizeScript.Run(ctx, s.client, []string{s.setKey(queueName)}, s.jobPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// DeleteAll implements queue.Storage.
func (s *QueueStorage) DeleteAll(ctx context.Context, queueName string) error {
	err := deleteAllScript.Run(ctx, s.client,
		[]string{s.setKey(queueName), s.readyKey(queueName)}, s.jobPrefix()).Err()
	if err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}

func decodeJob(f map[string]string) (*queue.Job, error) {
	id, err := uuid.Parse(f["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: id: %w", ErrMalformedJob, err)
	}

	job := &queue.Job{
		ID:       id,
		Queue:    f["queue"],
		Error:    f["error"],
		Status:   queue.JobStatus(f["status"]),
		LockedBy: f["locked_by"],
	}
	if v := f["input"]; v != "" {
		job.Input = []byte(v)
	}
	if v := f["output"]; v != "" {
		job.Output = []byte(v)
	}

	if job.Seq, err = strconv.ParseInt(f["seq"], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: seq: %w", ErrMalformedJob, err)
	}
	if job.Attempts, err = strconv.Atoi(f["attempts"]); err != nil {
		return nil, fmt.Errorf("%w: attempts: %w", ErrMalformedJob, err)
	}
	if job.MaxAttempts, err = strconv.Atoi(f["max_attempts"]); err != nil {
		return nil, fmt.Errorf("%w: max_attempts: %w", ErrMalformedJob, err)
	}

	times := []struct {
		field string
		dst   *time.Time
	}{
		{"run_at", &job.RunAt},
		{"created_at", &job.CreatedAt},
		{"updated_at", &job.UpdatedAt},
	}
	for _, tm := range times {
		if *tm.dst, err = parseMicros(f[tm.field]); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedJob, tm.field, err)
		}
	}
	if job.StartedAt, err = parseOptionalMicros(f["started_at"]); err != nil {
		return nil, fmt.Errorf("%w: started_at: %w", ErrMalformedJob, err)
	}
	if job.FinishedAt, err = parseOptionalMicros(f["finished_at"]); err != nil {
		return nil, fmt.Errorf("%w: finished_at: %w", ErrMalformedJob, err)
	}
	return job, nil
}

func parseMicros(s string) (time.Time, error) {
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(us).UTC(), nil
}

func parseOptionalMicros(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseMicros(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
