package limiter

import (
	"context"
	"sync"
)

// Concurrency bounds the number of jobs executing at once in this process.
type Concurrency struct {
	maxConcurrent int
	maxPrefetch   int

	mu     sync.Mutex
	active int
}

// NewConcurrency creates a limiter granting while fewer than maxConcurrent
// jobs are active. maxPrefetch bounds how many jobs a server may claim
// back-to-back in one poll cycle; zero means one.
func NewConcurrency(maxConcurrent, maxPrefetch int) (*Concurrency, error) {
	if maxConcurrent <= 0 {
		return nil, ErrInvalidLimit
	}
	if maxPrefetch < 0 {
		return nil, ErrInvalidPrefetch
	}
	return &Concurrency{
		maxConcurrent: maxConcurrent,
		maxPrefetch:   max(maxPrefetch, 1),
	}, nil
}

// Ready reports whether a slot is free without taking it.
func (c *Concurrency) Ready(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active < c.maxConcurrent, nil
}

// Acquire takes a slot. It returns false when all slots are held.
func (c *Concurrency) Acquire(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active >= c.maxConcurrent {
		return false, nil
	}
	c.active++
	return true, nil
}

// Release frees a slot taken by Acquire. Extra calls are ignored.
func (c *Concurrency) Release(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// Active returns the number of held slots.
func (c *Concurrency) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// MaxConcurrent returns the number of slots.
func (c *Concurrency) MaxConcurrent() int { return c.maxConcurrent }

// Prefetch returns how many claims a server may make back-to-back per poll.
func (c *Concurrency) Prefetch() int { return c.maxPrefetch }
