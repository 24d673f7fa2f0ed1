package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
)

// RateStorage keeps limiter starts in one sorted set per name, scored by
// Unix microseconds.
type RateStorage struct {
	client redis.UniversalClient
	prefix string
}

// NewRateStorage wraps client. An empty prefix defaults to "jobkit".
func NewRateStorage(client redis.UniversalClient, prefix string) *RateStorage {
	if prefix == "" {
		prefix = "jobkit"
	}
	return &RateStorage{client: client, prefix: prefix}
}

var _ limiter.Storage = (*RateStorage)(nil)

func (s *RateStorage) key(name string) string { return s.prefix + ":rate:" + name }

func member(at time.Time) string {
	return strconv.FormatInt(at.UnixMicro(), 10) + ":" + uuid.NewString()
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// Record implements limiter.Storage.
func (s *RateStorage) Record(ctx context.Context, name string, at time.Time) error {
	err := s.client.ZAdd(ctx, s.key(name), redis.Z{Score: float64(at.UnixMicro()), Member: member(at)}).Err()
	if err != nil {
		return fmt.Errorf("record rate event: %w", err)
	}
	return nil
}

// Count implements limiter.Storage.
func (s *RateStorage) Count(ctx context.Context, name string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, s.key(name), "("+score(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count rate events: %w", err)
	}
	return int(n), nil
}

// RecordIfBelow also prunes starts at or before since.
func (s *RateStorage) RecordIfBelow(ctx context.Context, name string, at, since time.Time, limit int) (bool, error) {
	ok, err := recordIfBelowScript.Run(ctx, s.client, []string{s.key(name)},
		at.UnixMicro(), since.UnixMicro(), limit, member(at)).Int()
	if err != nil {
		return false, fmt.Errorf("admit rate event: %w", err)
	}
	return ok == 1, nil
}

// Oldest implements limiter.Storage.
func (s *RateStorage) Oldest(ctx context.Context, name string, since time.Time) (time.Time, bool, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.key(name), &redis.ZRangeBy{
		Min:   "(" + score(since),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest rate event: %w", err)
	}
	if len(zs) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMicro(int64(zs[0].Score)).UTC(), true, nil
}

// Clear implements limiter.Storage.
func (s *RateStorage) Clear(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("clear rate events: %w", err)
	}
	return nil
}
