package taskgraph

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/jobkit/pkg/failure"
)

var (
	// ErrAlreadyStarted is returned when a graph or task is run twice or modified after start.
	ErrAlreadyStarted = errors.New("graph already started")

	// ErrNilTask is returned when adding a nil task.
	ErrNilTask = fmt.Errorf("%w: task cannot be nil", failure.ErrConfiguration)

	// ErrNilRunner is returned when adding a task without a runner.
	ErrNilRunner = fmt.Errorf("%w: task runner cannot be nil", failure.ErrConfiguration)

	// ErrDuplicateTask is returned when a task ID is already present in the graph.
	ErrDuplicateTask = fmt.Errorf("%w: duplicate task id", failure.ErrConfiguration)

	// ErrUnknownTask is returned when an edge references a task outside the graph.
	ErrUnknownTask = fmt.Errorf("%w: task is not part of the graph", failure.ErrConfiguration)

	// ErrDuplicateBinding is returned when a consumer already has an input with the same name.
	ErrDuplicateBinding = fmt.Errorf("%w: duplicate input binding", failure.ErrConfiguration)

	// ErrCycle is returned when an edge would make the graph cyclic.
	ErrCycle = fmt.Errorf("%w: edge would create a cycle", failure.ErrConfiguration)

	// ErrTaskNotPending is returned when adding a task that has already run.
	ErrTaskNotPending = fmt.Errorf("%w: task is not pending", failure.ErrConfiguration)

	// ErrTaskOwned is returned when adding a task that belongs to another graph.
	ErrTaskOwned = fmt.Errorf("%w: task belongs to another graph", failure.ErrConfiguration)

	// errNotStarted marks a node skipped because the run stopped before its body began.
	errNotStarted = errors.New("task not started")
)

// TaskError reports the task whose error settled a graph run.
type TaskError struct {
	TaskID string
	Kind   string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
