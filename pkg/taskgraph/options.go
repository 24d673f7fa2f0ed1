package taskgraph

import (
	"log/slog"

	"github.com/dmitrymomot/jobkit/pkg/cleanup"
)

// Option configures a Graph.
type Option func(*Graph)

// WithGraphID sets the graph ID. A random UUID is used otherwise.
func WithGraphID(id string) Option {
	return func(g *Graph) {
		if id != "" {
			g.id = id
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers a callback for status and progress events.
// Observers are called synchronously from the goroutine that caused the event
// and must not block.
func WithObserver(fn Observer) Option {
	return func(g *Graph) {
		if fn != nil {
			g.observers = append(g.observers, fn)
		}
	}
}

// WithMaxParallel bounds how many task bodies run at the same time.
// Zero or negative means unbounded.
func WithMaxParallel(n int) Option {
	return func(g *Graph) {
		g.maxParallel = n
	}
}

// WithCleanup makes the run drain r instead of a fresh registry.
func WithCleanup(r *cleanup.Registry) Option {
	return func(g *Graph) {
		if r != nil {
			g.cleanup = r
		}
	}
}
