package limiter

import (
	"context"
	"fmt"
	"time"
)

// RateConfig is the fixed-shape configuration of a Rate limiter.
type RateConfig struct {
	MaxExecutions       int `yaml:"max_executions" json:"max_executions"`
	WindowSizeInSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

// Window returns the window length.
func (c RateConfig) Window() time.Duration {
	return time.Duration(c.WindowSizeInSeconds) * time.Second
}

// Validate reports configuration errors.
func (c RateConfig) Validate() error {
	if c.MaxExecutions <= 0 {
		return fmt.Errorf("%w: max executions %d", ErrInvalidLimit, c.MaxExecutions)
	}
	if c.WindowSizeInSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidWindow, c.WindowSizeInSeconds)
	}
	return nil
}

// RateOption configures a Rate limiter.
type RateOption func(*Rate)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) RateOption {
	return func(r *Rate) {
		if now != nil {
			r.now = now
		}
	}
}

// Rate admits at most MaxExecutions starts per trailing window for a name.
type Rate struct {
	storage Storage
	name    string
	cfg     RateConfig
	window  time.Duration
	now     func() time.Time
}

// NewRate creates a sliding-window limiter over storage.
func NewRate(storage Storage, name string, cfg RateConfig, opts ...RateOption) (*Rate, error) {
	if storage == nil {
		return nil, ErrStorageRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Rate{
		storage: storage,
		name:    name,
		cfg:     cfg,
		window:  cfg.Window(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the key under which starts are recorded.
func (r *Rate) Name() string { return r.name }

// Config returns the window configuration.
func (r *Rate) Config() RateConfig { return r.cfg }

// Ready reports whether the current window has room. Another process may
// take that room before Acquire.
func (r *Rate) Ready(ctx context.Context) (bool, error) {
	n, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	return n < r.cfg.MaxExecutions, nil
}

// Acquire records a start when the window has room. The check and the
// record are one atomic storage operation.
func (r *Rate) Acquire(ctx context.Context) (bool, error) {
	now := r.now()
	ok, err := r.storage.RecordIfBelow(ctx, r.name, now, now.Add(-r.window), r.cfg.MaxExecutions)
	if err != nil {
		return false, fmt.Errorf("rate limiter %s: %w", r.name, err)
	}
	return ok, nil
}

// Release is a no-op: starts leave the window by time.
func (r *Rate) Release(context.Context) {}

// Count returns the starts inside the current window.
func (r *Rate) Count(ctx context.Context) (int, error) {
	n, err := r.storage.Count(ctx, r.name, r.now().Add(-r.window))
	if err != nil {
		return 0, fmt.Errorf("rate limiter %s: %w", r.name, err)
	}
	return n, nil
}

// NextAvailable returns when the next start will be admitted. It returns the
// current time when capacity exists now.
func (r *Rate) NextAvailable(ctx context.Context) (time.Time, error) {
	now := r.now()
	since := now.Add(-r.window)
	n, err := r.storage.Count(ctx, r.name, since)
	if err != nil {
		return time.Time{}, err
	}
	if n < r.cfg.MaxExecutions {
		return now, nil
	}
	oldest, ok, err := r.storage.Oldest(ctx, r.name, since)
	if err != nil || !ok {
		return now, err
	}
	return oldest.Add(r.window), nil
}

// Reset forgets every recorded start for this limiter's name.
func (r *Rate) Reset(ctx context.Context) error {
	return r.storage.Clear(ctx, r.name)
}
