package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Queue bundles the server, client and storage of one named queue.
type Queue struct {
	Name    string
	Server  *Server
	Client  *Client
	Storage Storage
}

// NewQueue builds a server and an attached client sharing storage.
func NewQueue(name string, storage Storage, handler Handler, serverOpts []ServerOption, clientOpts ...ClientOption) (*Queue, error) {
	if name == "" {
		return nil, ErrQueueNameEmpty
	}
	srv, err := NewServer(storage, handler, append(serverOpts, WithQueueName(name))...)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", name, err)
	}
	client, err := NewClient(storage, append(clientOpts, WithClientQueueName(name))...)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", name, err)
	}
	client.Attach(srv)
	return &Queue{Name: name, Server: srv, Client: client, Storage: storage}, nil
}

// Registry maps queue names to queues. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		queues: make(map[string]*Queue),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("queue.registry"))
	return r
}

// Register adds q under q.Name.
func (r *Registry) Register(q *Queue) error {
	if q == nil || q.Name == "" {
		return ErrQueueNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.queues[q.Name]; dup {
		return fmt.Errorf("%w: %s", ErrQueueRegistered, q.Name)
	}
	r.queues[q.Name] = q
	return nil
}

// Get returns the queue registered under name.
func (r *Registry) Get(name string) (*Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	return q, nil
}

// Names returns registered queue names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) snapshot() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// StartAll starts every server that has not been started yet.
func (r *Registry) StartAll(ctx context.Context) error {
	// Plain group: servers keep ctx, which must outlive Wait.
	var eg errgroup.Group
	for _, q := range r.snapshot() {
		if q.Server == nil {
			continue
		}
		eg.Go(func() error {
			err := q.Server.Start(ctx)
			if err == nil || errors.Is(err, ErrServerStarted) {
				return nil
			}
			return fmt.Errorf("start queue %s: %w", q.Name, err)
		})
	}
	return eg.Wait()
}

// Stop stops the server of one queue.
func (r *Registry) Stop(ctx context.Context, name string, mode StopMode) error {
	q, err := r.Get(name)
	if err != nil {
		return err
	}
	if q.Server == nil {
		return nil
	}
	return q.Server.Stop(ctx, mode)
}

// StopAll stops every server concurrently and waits for their jobs to settle
// or ctx to end.
func (r *Registry) StopAll(ctx context.Context, mode StopMode) error {
	var eg errgroup.Group
	for _, q := range r.snapshot() {
		if q.Server == nil {
			continue
		}
		eg.Go(func() error {
			if err := q.Server.Stop(ctx, mode); err != nil {
				r.logger.WarnContext(ctx, "queue stop incomplete", logger.Queue(q.Name), logger.Error(err))
				return fmt.Errorf("stop queue %s: %w", q.Name, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Clear stops every server and then forgets all queues.
func (r *Registry) Clear(ctx context.Context, mode StopMode) error {
	err := r.StopAll(ctx, mode)
	r.Reset()
	return err
}

// Reset forgets all queues without stopping them.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = make(map[string]*Queue)
}

var defaultRegistry atomic.Pointer[Registry]

func init() {
	defaultRegistry.Store(NewRegistry())
}

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry.Load()
}

// SetDefault replaces the process-wide registry and returns the previous one.
func SetDefault(r *Registry) *Registry {
	if r == nil {
		r = NewRegistry()
	}
	return defaultRegistry.Swap(r)
}

// ResetDefault installs a fresh process-wide registry. Queues held by the
// previous one are not stopped.
func ResetDefault() {
	defaultRegistry.Store(NewRegistry())
}

type registryKey struct{}

// WithRegistry returns a copy of ctx carrying r.
func WithRegistry(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// FromContext returns the registry carried by ctx or the process-wide one.
func FromContext(ctx context.Context) *Registry {
	if ctx != nil {
		if r, ok := ctx.Value(registryKey{}).(*Registry); ok && r != nil {
			return r
		}
	}
	return Default()
}
