package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobkit/pkg/cleanup"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Binding feeds a producer's output into a consumer's input under a name.
type Binding struct {
	producer *Task
	name     string
}

// Bind declares that the task being added consumes producer's output as
// Input.Deps[name]. An empty name defaults to the producer ID.
func Bind(producer *Task, name string) Binding {
	if name == "" && producer != nil {
		name = producer.ID()
	}
	return Binding{producer: producer, name: name}
}

type edge struct {
	from *node
	name string
}

type node struct {
	task       *Task
	deps       []edge
	dependents []*node
}

// Graph is a set of tasks with producer/consumer edges. A graph runs once.
type Graph struct {
	id          string
	logger      *slog.Logger
	observers   []Observer
	maxParallel int
	cleanup     *cleanup.Registry

	mu       sync.Mutex
	nodes    map[string]*node
	order    []*node
	status   Status
	err      error
	abortReq bool
	cancel   context.CancelCauseFunc
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		id:     uuid.NewString(),
		logger: slog.Default(),
		nodes:  make(map[string]*node),
		status: StatusPending,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cleanup == nil {
		g.cleanup = cleanup.New(cleanup.WithLogger(g.logger))
	}
	g.logger = g.logger.With(logger.GraphID(g.id))
	return g
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// Status returns the graph status.
func (g *Graph) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Err returns the error that settled the run, if any.
func (g *Graph) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Task returns the task with the given ID.
func (g *Graph) Task(id string) (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.task, true
}

// Tasks returns the tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Task, len(g.order))
	for i, n := range g.order {
		out[i] = n.task
	}
	return out
}

// AddTask inserts task and the edges implied by its bindings. Producers must
// already be in the graph, so bindings alone can never form a cycle.
func (g *Graph) AddTask(task *Task, bindings ...Binding) error {
	if task == nil {
		return ErrNilTask
	}
	if task.runner == nil {
		return ErrNilRunner
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusPending {
		return ErrAlreadyStarted
	}
	if _, dup := g.nodes[task.ID()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
	}
	task.mu.RLock()
	status, owner := task.status, task.owner
	task.mu.RUnlock()
	if status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrTaskNotPending, task.ID(), status)
	}
	if owner != nil && owner != g {
		return fmt.Errorf("%w: %s", ErrTaskOwned, task.ID())
	}

	n := &node{task: task}
	names := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if b.producer == nil {
			return ErrNilTask
		}
		from, ok := g.nodes[b.producer.ID()]
		if !ok || from.task != b.producer {
			return fmt.Errorf("%w: %s", ErrUnknownTask, b.producer.ID())
		}
		if _, dup := names[b.name]; dup {
			return fmt.Errorf("%w: %q on %s", ErrDuplicateBinding, b.name, task.ID())
		}
		names[b.name] = struct{}{}
		n.deps = append(n.deps, edge{from: from, name: b.name})
	}

	for _, e := range n.deps {
		e.from.dependents = append(e.from.dependents, n)
	}
	g.nodes[task.ID()] = n
	g.order = append(g.order, n)
	task.attach(g)
	return nil
}

// Connect adds an edge between two tasks already in the graph.
func (g *Graph) Connect(producer, consumer *Task, name string) error {
	if producer == nil || consumer == nil {
		return ErrNilTask
	}
	if name == "" {
		name = producer.ID()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusPending {
		return ErrAlreadyStarted
	}
	from, ok := g.nodes[producer.ID()]
	if !ok || from.task != producer {
		return fmt.Errorf("%w: %s", ErrUnknownTask, producer.ID())
	}
	to, ok := g.nodes[consumer.ID()]
	if !ok || to.task != consumer {
		return fmt.Errorf("%w: %s", ErrUnknownTask, consumer.ID())
	}
	for _, e := range to.deps {
		if e.name == name {
			return fmt.Errorf("%w: %q on %s", ErrDuplicateBinding, name, consumer.ID())
		}
	}
	if reaches(to, from) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, producer.ID(), consumer.ID())
	}

	to.deps = append(to.deps, edge{from: from, name: name})
	from.dependents = append(from.dependents, to)
	return nil
}

// reaches reports whether target is reachable from start along dependents.
func reaches(start, target *node) bool {
	seen := make(map[*node]bool)
	stack := []*node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, n.dependents...)
	}
	return false
}

// Run executes the graph and returns the outputs of sink tasks keyed by task
// ID. It returns the first task error wrapped in *TaskError, or an error
// matching failure.ErrAborted when the run was aborted, even if every started
// body returned on its own. The cleanup registry has been drained by the time Run returns.
func (g *Graph) Run(ctx context.Context) (map[string]any, error) {
	g.mu.Lock()
	if g.status != StatusPending {
		g.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancelCause(ctx)
	g.cancel = cancel
	g.status = StatusRunning
	if g.abortReq {
		g.status = StatusAborting
		cancel(failure.ErrAborted)
	}
	nodes := append([]*node(nil), g.order...)
	g.mu.Unlock()
	defer cancel(nil)

	g.emit(Event{Type: EventStatus, Status: StatusRunning})
	start := time.Now()
	g.logger.DebugContext(ctx, "graph started", slog.Int("tasks", len(nodes)))

	runErr := g.execute(cleanup.WithRegistry(ctx, g.cleanup), nodes)

	if err := g.cleanup.RunAll(context.WithoutCancel(ctx)); err != nil {
		g.logger.WarnContext(ctx, "graph cleanup reported errors", logger.Error(err))
	}

	final := StatusCompleted
	switch {
	case runErr == nil:
	case failure.IsAborted(runErr):
		final = StatusAborted
	default:
		final = StatusFailed
	}

	g.mu.Lock()
	g.status = final
	g.err = runErr
	g.mu.Unlock()

	g.emit(Event{Type: EventStatus, Status: final, Err: runErr})
	g.logger.DebugContext(ctx, "graph settled",
		logger.Status(final),
		logger.Duration(time.Since(start)),
		logger.Error(runErr))

	if runErr != nil {
		return nil, runErr
	}

	outputs := make(map[string]any)
	for _, n := range nodes {
		if len(n.dependents) == 0 {
			outputs[n.task.ID()] = n.task.Output()
		}
	}
	return outputs, nil
}

type result struct {
	node *node
	err  error
}

// execute schedules nodes as their producers complete. No node is launched
// after the first failure or once ctx is done, and at most maxParallel bodies
// run at a time. It returns once every started body has returned.
func (g *Graph) execute(ctx context.Context, nodes []*node) error {
	pending := make(map[*node]int, len(nodes))
	var ready []*node
	for _, n := range nodes {
		pending[n] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, n)
		}
	}

	// Buffered so finished bodies never block on the coordinator and
	// errgroup slots free up promptly.
	results := make(chan result, len(nodes))
	var eg errgroup.Group
	if g.maxParallel > 0 {
		eg.SetLimit(g.maxParallel)
	}

	var (
		firstErr  error
		completed int
		running   int
	)
	for {
		for len(ready) > 0 && firstErr == nil && ctx.Err() == nil {
			if g.maxParallel > 0 && running >= g.maxParallel {
				break
			}
			n := ready[0]
			ready = ready[1:]
			running++
			eg.Go(func() error {
				results <- result{node: n, err: g.runNode(ctx, n)}
				return nil
			})
		}
		if running == 0 {
			break
		}

		r := <-results
		running--
		switch {
		case errors.Is(r.err, errNotStarted):
			continue
		case r.err != nil:
			if firstErr == nil {
				firstErr = &TaskError{TaskID: r.node.task.ID(), Kind: r.node.task.Kind(), Err: r.err}
			}
			continue
		}
		completed++
		for _, d := range r.node.dependents {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	_ = eg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// An abort settles the graph as ABORTED even when every started body
	// returned on its own.
	if completed < len(nodes) || ctx.Err() != nil {
		return failure.Aborted(context.Cause(ctx))
	}
	return nil
}

func (g *Graph) runNode(ctx context.Context, n *node) error {
	t := n.task
	if ctx.Err() != nil {
		return errNotStarted
	}
	in := Input{Value: t.input, Deps: make(map[string]any, len(n.deps))}
	for _, e := range n.deps {
		in.Deps[e.name] = e.from.task.Output()
	}

	tctx, ok := t.start(ctx)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotPending, t.ID())
	}
	g.emitStatus(t)

	tctx = context.WithValue(tctx, scopeKey{}, scope{graph: g, task: t})
	tctx = logger.ContextWithAttrs(tctx, logger.GraphID(g.id), logger.TaskID(t.ID()), logger.TaskKind(t.Kind()))

	out, err := t.call(tctx, in)
	t.finish(tctx, out, err)
	g.emitStatus(t)

	status := t.Status()
	attrs := []any{logger.TaskID(t.ID()), logger.TaskKind(t.Kind()), logger.Status(status), logger.Duration(t.Duration())}
	switch status {
	case StatusCompleted:
		g.logger.DebugContext(ctx, "task completed", attrs...)
		return nil
	case StatusAborted:
		g.logger.InfoContext(ctx, "task aborted", attrs...)
	default:
		g.logger.WarnContext(ctx, "task failed", append(attrs, logger.Error(t.Err()))...)
	}
	return t.Err()
}

// Abort requests cooperative cancellation of every running task. Tasks that
// have not started never start. Calling Abort before Run makes Run settle as
// ABORTED without starting any task.
func (g *Graph) Abort() {
	g.mu.Lock()
	if g.status.Terminal() {
		g.mu.Unlock()
		return
	}
	g.abortReq = true
	if g.status == StatusRunning {
		g.status = StatusAborting
	}
	cancel := g.cancel
	nodes := append([]*node(nil), g.order...)
	g.mu.Unlock()

	g.logger.Info("graph abort requested")
	if cancel != nil {
		cancel(failure.ErrAborted)
	}
	for _, n := range nodes {
		n.task.Abort()
	}
}

func (g *Graph) emitStatus(t *Task) {
	t.mu.RLock()
	ev := Event{Type: EventStatus, TaskID: t.id, Kind: t.kind, Status: t.status, Err: t.err}
	t.mu.RUnlock()
	g.emit(ev)
}

func (g *Graph) emit(ev Event) {
	if len(g.observers) == 0 {
		return
	}
	ev.GraphID = g.id
	ev.At = time.Now()
	for _, fn := range g.observers {
		fn(ev)
	}
}
