package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Local is a token bucket that only constrains this process.
type Local struct {
	lim *rate.Limiter
}

// NewLocal allows rps executions per second with the given burst.
func NewLocal(rps float64, burst int) (*Local, error) {
	if rps <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &Local{lim: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// Ready reports whether a token is available without spending it.
func (l *Local) Ready(context.Context) (bool, error) {
	return l.lim.Tokens() >= 1, nil
}

// Acquire spends a token if one is available.
func (l *Local) Acquire(context.Context) (bool, error) {
	return l.lim.Allow(), nil
}

// Release is a no-op: spent tokens refill with time.
func (l *Local) Release(context.Context) {}
