package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Func is a teardown callback.
type Func func(ctx context.Context) error

// Registry holds keyed teardown callbacks for one run.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Func
	ran     map[string]struct{}
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report callback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]Func),
		ran:     make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add stores fn under key, replacing any callback already stored there.
// Nothing is invoked. Keys that already ran in this registry are ignored.
func (r *Registry) Add(key string, fn Func) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.ran[key]; done {
		r.logger.Debug("cleanup key already executed, ignoring", logger.CleanupKey(key))
		return
	}
	r.entries[key] = fn
}

// Remove drops the callback stored under key without invoking it.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// RunAll invokes every pending callback and empties the registry.
// Callbacks run sequentially in no particular order. Errors and panics are
// collected and returned joined; they never stop other callbacks from
// running. Calling RunAll again only runs callbacks added since the previous
// call.
func (r *Registry) RunAll(ctx context.Context) error {
	r.mu.Lock()
	pending := r.entries
	r.entries = make(map[string]Func)
	for key := range pending {
		r.ran[key] = struct{}{}
	}
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	var errs []error
	for key, fn := range pending {
		if err := invoke(ctx, key, fn); err != nil {
			r.logger.WarnContext(ctx, "cleanup callback failed",
				logger.CleanupKey(key),
				logger.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func invoke(ctx context.Context, key string, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cleanup %q panicked: %v", key, rec)
		}
	}()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("cleanup %q: %w", key, err)
	}
	return nil
}
