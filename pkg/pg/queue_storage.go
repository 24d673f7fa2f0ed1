package pg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

const jobColumns = `id, seq, queue, input, output, error, status, attempts, max_attempts,
	run_at, locked_by, created_at, updated_at, started_at, finished_at`

// QueueStorage keeps jobs in the jobkit_jobs table. Claims use
// FOR UPDATE SKIP LOCKED, so any number of workers may share a queue.
type QueueStorage struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *slog.Logger

	setupMu sync.Mutex
	ready   bool
}

// NewQueueStorage wraps pool. Setup applies the embedded migrations.
func NewQueueStorage(pool *pgxpool.Pool, cfg Config, log *slog.Logger) *QueueStorage {
	if log == nil {
		log = slog.Default()
	}
	return &QueueStorage{pool: pool, cfg: cfg, logger: log}
}

var _ queue.Storage = (*QueueStorage)(nil)

// Setup implements queue.Storage.
func (s *QueueStorage) Setup(ctx context.Context) error {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()
	if s.ready {
		return nil
	}
	if err := Migrate(ctx, s.pool, s.cfg, s.logger); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Enqueue implements queue.Storage.
func (s *QueueStorage) Enqueue(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobkit_jobs (id, queue, input, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		job.ID, job.Queue, nullJSON(job.Input), string(job.Status), job.Attempts, job.MaxAttempts,
		job.RunAt, job.CreatedAt, job.UpdatedAt,
	).Scan(&job.Seq)
	if IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", queue.ErrJobExists, job.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Claim implements queue.Storage.
func (s *QueueStorage) Claim(ctx context.Context, queueName, workerID string, now time.Time) (*queue.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobkit_jobs
		SET status = 'processing', locked_by = $3, started_at = $4, updated_at = $4
		WHERE id = (
			SELECT id FROM jobkit_jobs
			WHERE queue = $1
			  AND status IN ('pending', 'retrying')
			  AND run_at <= $2
			  AND attempts < max_attempts
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		queueName, now.UTC(), workerID, time.Now().UTC())

	job, err := scanJob(row)
	if IsNotFoundError(err) {
		return nil, queue.ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete implements queue.Storage.
func (s *QueueStorage) Complete(ctx context.Context, id uuid.UUID, output []byte) error {
	return s.settle(ctx, id, `
		UPDATE jobkit_jobs
		SET status = 'completed', output = $2, error = '', locked_by = '', finished_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		id, nullJSON(output), time.Now().UTC())
}

// Retry implements queue.Storage.
func (s *QueueStorage) Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return s.settle(ctx, id, `
		UPDATE jobkit_jobs
		SET status = 'retrying', attempts = attempts + 1, error = $2, run_at = $3, locked_by = '', updated_at = $4
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, runAt.UTC(), time.Now().UTC())
}

// Fail implements queue.Storage.
func (s *QueueStorage) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.settle(ctx, id, `
		UPDATE jobkit_jobs
		SET status = 'failed', attempts = attempts + 1, error = $2, locked_by = '', finished_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, time.Now().UTC())
}

// Release implements queue.Storage.
func (s *QueueStorage) Release(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, `
		UPDATE jobkit_jobs
		SET status = 'pending', locked_by = '', started_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'processing'`,
		id, time.Now().UTC())
}

// settle runs an update guarded by status = 'processing' and tells a missing
// job apart from one in the wrong state.
func (s *QueueStorage) settle(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobkit_jobs WHERE id = $1`, id).Scan(&status)
	if IsNotFoundError(err) {
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s is %s", queue.ErrJobNotProcessing, id, status)
}

// Get implements queue.Storage.
func (s *QueueStorage) Get(ctx context.Context, id uuid.UUID) (*queue.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobkit_jobs WHERE id = $1`, id))
	if IsNotFoundError(err) {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

// Size implements queue.Storage.
func (s *QueueStorage) Size(ctx context.Context, queueName string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobkit_jobs
		WHERE queue = $1 AND status NOT IN ('completed', 'failed')`, queueName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// DeleteAll implements queue.Storage.
func (s *QueueStorage) DeleteAll(ctx context.Context, queueName string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobkit_jobs WHERE queue = $1`, queueName); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job           queue.Job
		input, output []byte
		status        string
	)
	err := row.Scan(
		&job.ID, &job.Seq, &job.Queue, &input, &output, &job.Error, &status,
		&job.Attempts, &job.MaxAttempts, &job.RunAt, &job.LockedBy,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Input = input
	job.Output = output
	job.Status = queue.JobStatus(status)
	job.RunAt = job.RunAt.UTC()
	return &job, nil
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
