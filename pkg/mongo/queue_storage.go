package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

const jobsSeqCounter = "jobs_seq"

// QueueStorage keeps jobs in a MongoDB collection.
type QueueStorage struct {
	jobs     *mongo.Collection
	counters *mongo.Collection
}

// QueueStorageOption configures a QueueStorage.
type QueueStorageOption func(*queueStorageOptions)

type queueStorageOptions struct {
	jobs     string
	counters string
}

// WithCollections overrides the job and counter collection names.
func WithCollections(jobs, counters string) QueueStorageOption {
	return func(o *queueStorageOptions) {
		if jobs != "" {
			o.jobs = jobs
		}
		if counters != "" {
			o.counters = counters
		}
	}
}

// NewQueueStorage uses the "jobs" and "counters" collections of db.
func NewQueueStorage(db *mongo.Database, opts ...QueueStorageOption) *QueueStorage {
	o := &queueStorageOptions{jobs: "jobs", counters: "counters"}
	for _, opt := range opts {
		opt(o)
	}
	return &QueueStorage{
		jobs:     db.Collection(o.jobs),
		counters: db.Collection(o.counters),
	}
}

var _ queue.Storage = (*QueueStorage)(nil)

type jobDocument struct {
	ID          string     `bson:"_id"`
	Seq         int64      `bson:"seq"`
	Queue       string     `bson:"queue"`
	Input       string     `bson:"input,omitempty"`
	Output      string     `bson:"output,omitempty"`
	Error       string     `bson:"error"`
	Status      string     `bson:"status"`
	Attempts    int        `bson:"attempts"`
	MaxAttempts int        `bson:"max_attempts"`
	RunAt       time.Time  `bson:"run_at"`
	LockedBy    string     `bson:"locked_by"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty"`
	FinishedAt  *time.Time `bson:"finished_at,omitempty"`
}

func (d *jobDocument) job() (*queue.Job, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode job id %q: %w", d.ID, err)
	}
	job := &queue.Job{
		ID:          id,
		Queue:       d.Queue,
		Error:       d.Error,
		Status:      queue.JobStatus(d.Status),
		Attempts:    d.Attempts,
		MaxAttempts: d.MaxAttempts,
		Seq:         d.Seq,
		RunAt:       d.RunAt.UTC(),
		LockedBy:    d.LockedBy,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		StartedAt:   d.StartedAt,
		FinishedAt:  d.FinishedAt,
	}
	if d.Input != "" {
		job.Input = []byte(d.Input)
	}
	if d.Output != "" {
		job.Output = []byte(d.Output)
	}
	return job, nil
}

// Setup creates the claim index. CreateMany is a no-op for existing indexes.
func (s *QueueStorage) Setup(ctx context.Context) error {
	_, err := s.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue", Value: 1}, {Key: "status", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create job indexes: %w", err)
	}
	return nil
}

func (s *QueueStorage) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": jobsSeqCounter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next job seq: %w", err)
	}
	return counter.Value, nil
}

// Enqueue implements queue.Storage.
func (s *QueueStorage) Enqueue(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}

	doc := jobDocument{
		ID:          job.ID.String(),
		Seq:         seq,
		Queue:       job.Queue,
		Input:       string(job.Input),
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		RunAt:       job.RunAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if _, err := s.jobs.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", queue.ErrJobExists, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	job.Seq = seq
	return nil
}

// Claim implements queue.Storage.
func (s *QueueStorage) Claim(ctx context.Context, queueName, workerID string, now time.Time) (*queue.Job, error) {
	started := time.Now().UTC()
	filter := bson.M{
		"queue":  queueName,
		"status": bson.M{"$in": bson.A{string(queue.StatusPending), string(queue.StatusRetrying)}},
		"run_at": bson.M{"$lte": now.UTC()},
		"$expr":  bson.M{"$lt": bson.A{"$attempts", "$max_attempts"}},
	}
	update := bson.M{"$set": bson.M{
		"status":     string(queue.StatusProcessing),
		"locked_by":  workerID,
		"started_at": started,
		"updated_at": started,
	}}

	var doc jobDocument
	err := s.jobs.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, queue.ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return doc.job()
}

// Complete implements queue.Storage.
func (s *QueueStorage) Complete(ctx context.Context, id uuid.UUID, output []byte) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":      string(queue.StatusCompleted),
		"error":       "",
		"locked_by":   "",
		"finished_at": now,
		"updated_at":  now,
	}
	update := bson.M{"$set": set}
	if len(output) > 0 {
		set["output"] = string(output)
	} else {
		update["$unset"] = bson.M{"output": ""}
	}
	return s.settle(ctx, id, update)
}

// Retry implements queue.Storage.
func (s *QueueStorage) Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return s.settle(ctx, id, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"status":     string(queue.StatusRetrying),
			"error":      errMsg,
			"run_at":     runAt.UTC(),
			"locked_by":  "",
			"updated_at": time.Now().UTC(),
		},
	})
}

// Fail implements queue.Storage.
func (s *QueueStorage) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	return s.settle(ctx, id, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"status":      string(queue.StatusFailed),
			"error":       errMsg,
			"locked_by":   "",
			"finished_at": now,
			"updated_at":  now,
		},
	})
}

// Release implements queue.Storage.
func (s *QueueStorage) Release(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, bson.M{
		"$set": bson.M{
			"status":     string(queue.StatusPending),
			"locked_by":  "",
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"started_at": ""},
	})
}

func (s *QueueStorage) settle(ctx context.Context, id uuid.UUID, update bson.M) error {
	res, err := s.jobs.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(queue.StatusProcessing)}, update)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", queue.ErrJobNotProcessing, id, job.Status)
}

// Get implements queue.Storage.
func (s *QueueStorage) Get(ctx context.Context, id uuid.UUID) (*queue.Job, error) {
	var doc jobDocument
	err := s.jobs.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return doc.job()
}

// Size implements queue.Storage.
func (s *QueueStorage) Size(ctx context.Context, queueName string) (int, error) {
	n, err := s.jobs.CountDocuments(ctx, bson.M{
		"queue":  queueName,
		"status": bson.M{"$nin": bson.A{string(queue.StatusCompleted), string(queue.StatusFailed)}},
	})
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int(n), nil
}

// DeleteAll implements queue.Storage.
func (s *QueueStorage) DeleteAll(ctx context.Context, queueName string) error {
	if _, err := s.jobs.DeleteMany(ctx, bson.M{"queue": queueName}); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}
