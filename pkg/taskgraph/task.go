package taskgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/jobkit/pkg/failure"
)

// Input is what a runner receives: the task's static value plus the outputs of
// its producers keyed by binding name.
type Input struct {
	Value any
	Deps  map[string]any
}

// Dep returns the output bound under name.
func (in Input) Dep(name string) (any, bool) {
	v, ok := in.Deps[name]
	return v, ok
}

// Runner is the body of a task. It must observe ctx to be abortable.
type Runner interface {
	Run(ctx context.Context, in Input) (any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, in Input) (any, error)

// Run calls f(ctx, in).
func (f RunnerFunc) Run(ctx context.Context, in Input) (any, error) {
	return f(ctx, in)
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithID sets the task ID. A random UUID is used otherwise.
func WithID(id string) TaskOption {
	return func(t *Task) {
		if id != "" {
			t.id = id
		}
	}
}

// WithInput sets the static input value.
func WithInput(v any) TaskOption {
	return func(t *Task) {
		t.input = v
	}
}

// Task is a unit of work with an explicit lifecycle.
type Task struct {
	id     string
	kind   string
	runner Runner
	input  any

	mu        sync.RWMutex
	status    Status
	output    any
	err       error
	startedAt time.Time
	endedAt   time.Time
	cancel    context.CancelCauseFunc
	abortReq  bool
	owner     *Graph
	notify    func(*Task)
}

func (t *Task) attach(g *Graph) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner = g
	t.notify = g.emitStatus
}

// NewTask creates a pending task of the given kind.
func NewTask(kind string, runner Runner, opts ...TaskOption) *Task {
	t := &Task{
		id:     uuid.NewString(),
		kind:   kind,
		runner: runner,
		status: StatusPending,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the task identifier, unique within a graph.
func (t *Task) ID() string { return t.id }

// Kind returns the declared task type.
func (t *Task) Kind() string { return t.kind }

// Input returns the static input given with WithInput.
func (t *Task) Input() any { return t.input }

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Output returns the value produced by a completed task.
func (t *Task) Output() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output
}

// Err returns the error captured when the task failed or was aborted.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Duration returns how long the body ran. Zero until the task settles.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.endedAt.IsZero() {
		return 0
	}
	return t.endedAt.Sub(t.startedAt)
}

// Abort requests cooperative cancellation. A running task moves to ABORTING and
// its context is canceled; a pending task will see a canceled context if it
// ever starts. Settled tasks are unaffected.
func (t *Task) Abort() {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.abortReq = true
	cancel := t.cancel
	changed := t.status == StatusRunning && t.moveLocked(StatusAborting)
	notify := t.notify
	t.mu.Unlock()

	if cancel != nil {
		cancel(failure.ErrAborted)
	}
	if changed && notify != nil {
		notify(t)
	}
}

// Run executes the task on its own, with the same cleanup and abort guarantees
// as a single-node graph.
func (t *Task) Run(ctx context.Context, opts ...Option) (any, error) {
	g := New(append([]Option{WithGraphID(t.id)}, opts...)...)
	if err := g.AddTask(t); err != nil {
		return nil, err
	}
	if _, err := g.Run(ctx); err != nil {
		return nil, err
	}
	return t.Output(), nil
}

// moveLocked applies a forward transition. Caller holds t.mu.
func (t *Task) moveLocked(next Status) bool {
	if !t.status.canMoveTo(next) {
		return false
	}
	t.status = next
	return true
}

// start moves a pending task to RUNNING and derives its cancellable context.
func (t *Task) start(parent context.Context) (context.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return nil, false
	}

	ctx, cancel := context.WithCancelCause(parent)
	t.cancel = cancel
	t.startedAt = time.Now()
	t.moveLocked(StatusRunning)
	if t.abortReq {
		t.moveLocked(StatusAborting)
		cancel(failure.ErrAborted)
	}
	return ctx, true
}

// finish records the outcome of the body and settles the task.
func (t *Task) finish(ctx context.Context, out any, err error) {
	err = failure.FromContext(ctx, err)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.endedAt = time.Now()
	if t.cancel != nil {
		t.cancel(nil)
	}

	switch {
	case err == nil:
		t.output = out
		t.moveLocked(StatusCompleted)
	case failure.IsAborted(err):
		t.err = err
		t.moveLocked(StatusAborting)
		t.moveLocked(StatusAborted)
	default:
		t.err = err
		t.moveLocked(StatusFailed)
	}
}

// call runs the body, turning panics into errors.
func (t *Task) call(ctx context.Context, in Input) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v", t.id, r)
		}
	}()
	return t.runner.Run(ctx, in)
}
