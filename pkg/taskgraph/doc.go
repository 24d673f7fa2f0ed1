// Package taskgraph executes dependency graphs of abortable tasks.
//
// A Task wraps a Runner together with its static input and an explicit
// lifecycle status. A Graph holds tasks plus directed edges that feed a
// producer's output into a consumer's input. Independent tasks run
// concurrently; a task starts only when every producer it depends on has
// completed.
//
// # Lifecycle
//
// Task status moves forward only:
//
//	PENDING -> RUNNING -> COMPLETED | FAILED
//	RUNNING -> ABORTING -> ABORTED
//
// A task that was asked to abort but whose body still returns on its own
// settles as COMPLETED or FAILED from ABORTING.
//
// On the first task error the graph stops scheduling, waits for every running
// body to return, settles as FAILED or ABORTED and Run returns that error
// wrapped in a *TaskError.
//
// # Cooperative abort
//
// Abort never force-terminates a body. It cancels the context handed to every
// running body with cause failure.ErrAborted. Bodies are expected to check
// ctx at safe points (or pass it to blocking calls) and return. A body that
// ignores its context keeps running until it returns by itself, and Run waits
// for it. This is an accepted limitation of cooperative cancellation, not a
// bug. Cancelling the context passed to Run has the same effect as Abort.
//
// # Cleanup
//
// Each Run owns one cleanup.Registry, reachable from task bodies through
// cleanup.Register(ctx, key, fn). The registry is drained exactly once, after
// every body tied to the run has returned and before Run returns, regardless of
// success, failure or abort.
//
// # Usage
//
//	g := taskgraph.New(taskgraph.WithLogger(log))
//
//	fetch := taskgraph.NewTask("fetch", fetchRunner, taskgraph.WithInput(url))
//	parse := taskgraph.NewTask("parse", parseRunner)
//
//	_ = g.AddTask(fetch)
//	_ = g.AddTask(parse, taskgraph.Bind(fetch, "body"))
//
//	outputs, err := g.Run(ctx) // outputs keyed by sink task ID
package taskgraph
