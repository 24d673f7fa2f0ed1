package limiter

import (
	"context"
	"time"
)

// Storage persists execution starts per limiter name.
// Implementations must make RecordIfBelow atomic with respect to other
// callers using the same name.
type Storage interface {
	// Record stores an execution start.
	Record(ctx context.Context, name string, at time.Time) error
	// Count returns the number of starts after since.
	Count(ctx context.Context, name string, since time.Time) (int, error)
	// RecordIfBelow stores a start at `at` only when fewer than limit starts
	// exist after since. It reports whether the start was stored.
	RecordIfBelow(ctx context.Context, name string, at, since time.Time, limit int) (bool, error)
	// Oldest returns the earliest start after since.
	Oldest(ctx context.Context, name string, since time.Time) (time.Time, bool, error)
	// Clear removes every start stored for name.
	Clear(ctx context.Context, name string) error
}
