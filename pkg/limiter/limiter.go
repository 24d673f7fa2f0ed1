package limiter

import "context"

// Limiter admits or defers work.
type Limiter interface {
	// Ready reports whether Acquire would currently succeed. It takes nothing.
	Ready(ctx context.Context) (bool, error)
	// Acquire takes one unit of capacity if available.
	Acquire(ctx context.Context) (bool, error)
	// Release returns capacity held by a settled job.
	Release(ctx context.Context)
}

// Prefetcher is implemented by limiters that allow claiming several jobs per
// poll cycle.
type Prefetcher interface {
	Prefetch() int
}

// Set is an ordered group of limiters treated as one.
type Set struct {
	limiters []Limiter
}

// NewSet groups limiters. Nil entries are skipped.
func NewSet(limiters ...Limiter) *Set {
	s := &Set{}
	for _, l := range limiters {
		if l != nil {
			s.limiters = append(s.limiters, l)
		}
	}
	return s
}

// Len returns the number of grouped limiters.
func (s *Set) Len() int { return len(s.limiters) }

// Ready reports whether every limiter is ready.
func (s *Set) Ready(ctx context.Context) (bool, error) {
	for _, l := range s.limiters {
		ok, err := l.Ready(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Acquire takes a unit from every limiter in order. When one refuses, units
// already taken are released and false is returned.
func (s *Set) Acquire(ctx context.Context) (bool, error) {
	for i, l := range s.limiters {
		ok, err := l.Acquire(ctx)
		if err != nil || !ok {
			for _, held := range s.limiters[:i] {
				held.Release(ctx)
			}
			return false, err
		}
	}
	return true, nil
}

// Release releases every limiter.
func (s *Set) Release(ctx context.Context) {
	for _, l := range s.limiters {
		l.Release(ctx)
	}
}

// Prefetch returns the smallest prefetch depth among grouped Prefetchers,
// or 1 when none declares one.
func (s *Set) Prefetch() int {
	depth := 0
	for _, l := range s.limiters {
		p, ok := l.(Prefetcher)
		if !ok {
			continue
		}
		if n := p.Prefetch(); depth == 0 || n < depth {
			depth = n
		}
	}
	return max(depth, 1)
}
