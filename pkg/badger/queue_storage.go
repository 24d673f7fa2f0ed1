package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/jobkit/pkg/queue"
)

const (
	seqKey         = "seq/jobs"
	seqBandwidth   = 100
	maxTxnAttempts = 64
)

// QueueStorage implements queue.Storage on a badger database.
type QueueStorage struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewQueueStorage leases a job sequence from db. Call Close to return the
// unused part of the lease before closing db.
func NewQueueStorage(db *badger.DB) (*QueueStorage, error) {
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("lease job sequence: %w", err)
	}
	return &QueueStorage{db: db, seq: seq}, nil
}

var _ queue.Storage = (*QueueStorage)(nil)

func jobKey(id uuid.UUID) []byte { return []byte("job/" + id.String()) }

func readyPrefix(queueName string) []byte { return []byte("ready/" + queueName + "/") }

func readyKey(queueName string, seq int64) []byte {
	return fmt.Appendf(nil, "ready/%s/%020d", queueName, seq)
}

func memberPrefix(queueName string) []byte { return []byte("member/" + queueName + "/") }

func memberKey(queueName string, id uuid.UUID) []byte {
	return []byte("member/" + queueName + "/" + id.String())
}

// Close releases the sequence lease.
func (s *QueueStorage) Close() error {
	return s.seq.Release()
}

// Setup has nothing to prepare; keys need no schema.
func (s *QueueStorage) Setup(context.Context) error { return nil }

// Enqueue implements queue.Storage.
func (s *QueueStorage) Enqueue(_ context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next job seq: %w", err)
	}
	stored := job.Clone()
	// Sequences start at zero; seq 0 is kept for "unassigned".
	stored.Seq = int64(next) + 1

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(jobKey(job.ID)); err == nil {
			return fmt.Errorf("%w: %s", queue.ErrJobExists, job.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := putJob(txn, stored); err != nil {
			return err
		}
		if err := txn.Set(memberKey(stored.Queue, stored.ID), nil); err != nil {
			return err
		}
		return txn.Set(readyKey(stored.Queue, stored.Seq), []byte(stored.ID.String()))
	})
	if err != nil {
		return err
	}
	job.Seq = stored.Seq
	return nil
}

// Claim implements queue.Storage.
func (s *QueueStorage) Claim(ctx context.Context, queueName, workerID string, now time.Time) (*queue.Job, error) {
	var claimed *queue.Job
	err := s.update(ctx, func(txn *badger.Txn) error {
		claimed = nil

		opts := badger.DefaultIteratorOptions
		opts.Prefix = readyPrefix(queueName)
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err := uuid.ParseBytes(raw)
			if err != nil {
				return fmt.Errorf("decode ready entry %s: %w", item.Key(), err)
			}
			job, err := getJob(txn, id)
			if errors.Is(err, queue.ErrJobNotFound) {
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if err != nil {
				return err
			}
			if (job.Status != queue.StatusPending && job.Status != queue.StatusRetrying) || job.Attempts >= job.MaxAttempts {
				stale = append(stale, item.KeyCopy(nil))
				continue
			}
			if job.RunAt.After(now) {
				continue
			}

			started := time.Now().UTC()
			job.Status = queue.StatusProcessing
			job.LockedBy = workerID
			job.StartedAt = &started
			job.UpdatedAt = started
			if err := txn.Delete(item.KeyCopy(nil)); err != nil {
				return err
			}
			if err := putJob(txn, job); err != nil {
				return err
			}
			claimed = job
			break
		}

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if claimed == nil {
		return nil, queue.ErrNoJobToClaim
	}
	return claimed, nil
}

// Complete implements queue.Storage.
func (s *QueueStorage) Complete(ctx context.Context, id uuid.UUID, output []byte) error {
	return s.settle(ctx, id, func(txn *badger.Txn, job *queue.Job, now time.Time) error {
		job.Status = queue.StatusCompleted
		job.Output = append([]byte(nil), output...)
		if len(output) == 0 {
			job.Output = nil
		}
		job.Error = ""
		job.FinishedAt = &now
		return nil
	})
}

// Retry implements queue.Storage.
func (s *QueueStorage) Retry(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	return s.settle(ctx, id, func(txn *badger.Txn, job *queue.Job, _ time.Time) error {
		job.Attempts++
		job.Status = queue.StatusRetrying
		job.Error = errMsg
		job.RunAt = runAt.UTC()
		if job.Attempts >= job.MaxAttempts {
			return nil
		}
		return txn.Set(readyKey(job.Queue, job.Seq), []byte(job.ID.String()))
	})
}

// Fail implements queue.Storage.
func (s *QueueStorage) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.settle(ctx, id, func(_ *badger.Txn, job *queue.Job, now time.Time) error {
		job.Attempts++
		job.Status = queue.StatusFailed
		job.Error = errMsg
		job.FinishedAt = &now
		return nil
	})
}

// Release implements queue.Storage.
func (s *QueueStorage) Release(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, func(txn *badger.Txn, job *queue.Job, _ time.Time) error {
		job.Status = queue.StatusPending
		job.StartedAt = nil
		return txn.Set(readyKey(job.Queue, job.Seq), []byte(job.ID.String()))
	})
}

func (s *QueueStorage) settle(ctx context.Context, id uuid.UUID, apply func(*badger.Txn, *queue.Job, time.Time) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		job, err := getJob(txn, id)
		if err != nil {
			return err
		}
		if job.Status != queue.StatusProcessing {
			return fmt.Errorf("%w: %s is %s", queue.ErrJobNotProcessing, id, job.Status)
		}
		now := time.Now().UTC()
		if err := apply(txn, job, now); err != nil {
			return err
		}
		job.LockedBy = ""
		job.UpdatedAt = now
		return putJob(txn, job)
	})
}

// Get implements queue.Storage.
func (s *QueueStorage) Get(_ context.Context, id uuid.UUID) (*queue.Job, error) {
	var job *queue.Job
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = getJob(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Size implements queue.Storage.
func (s *QueueStorage) Size(_ context.Context, queueName string) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return eachMember(txn, queueName, func(_ []byte, id uuid.UUID) error {
			job, err := getJob(txn, id)
			if errors.Is(err, queue.ErrJobNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !job.Status.Terminal() {
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// DeleteAll implements queue.Storage.
func (s *QueueStorage) DeleteAll(ctx context.Context, queueName string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var keys [][]byte
		err := eachMember(txn, queueName, func(key []byte, id uuid.UUID) error {
			keys = append(keys, key, jobKey(id))
			return nil
		})
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = readyPrefix(queueName)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent claims.
func (s *QueueStorage) update(ctx context.Context, fn func(*badger.Txn) error) error {
	for range maxTxnAttempts {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrClaimConflict
}

func eachMember(txn *badger.Txn, queueName string, fn func(key []byte, id uuid.UUID) error) error {
	prefix := memberPrefix(queueName)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		id, err := uuid.ParseBytes(bytes.TrimPrefix(key, prefix))
		if err != nil {
			return fmt.Errorf("decode member key %s: %w", key, err)
		}
		if err := fn(key, id); err != nil {
			return err
		}
	}
	return nil
}

func getJob(txn *badger.Txn, id uuid.UUID) (*queue.Job, error) {
	item, err := txn.Get(jobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var job queue.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func putJob(txn *badger.Txn, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return txn.Set(jobKey(job.ID), data)
}
