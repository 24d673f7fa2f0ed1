package taskgraph

import (
	"context"
	"time"
)

// EventType distinguishes observer notifications.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
)

// Event is delivered to observers. TaskID is empty for graph-level events.
type Event struct {
	Type     EventType
	GraphID  string
	TaskID   string
	Kind     string
	Status   Status
	Progress float64
	Message  string
	Err      error
	At       time.Time
}

// Observer receives graph and task events.
type Observer func(Event)

type scopeKey struct{}

type scope struct {
	graph *Graph
	task  *Task
}

// ReportProgress emits a progress event for the task executing under ctx.
// pct is clamped to [0, 1]. It reports false when ctx does not belong to a
// running task.
func ReportProgress(ctx context.Context, pct float64, msg string) bool {
	sc, ok := ctx.Value(scopeKey{}).(scope)
	if !ok {
		return false
	}
	pct = min(max(pct, 0), 1)
	sc.graph.emit(Event{
		Type:     EventProgress,
		TaskID:   sc.task.ID(),
		Kind:     sc.task.Kind(),
		Status:   sc.task.Status(),
		Progress: pct,
		Message:  msg,
	})
	return true
}

// TaskFromContext returns the task executing under ctx.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	sc, ok := ctx.Value(scopeKey{}).(scope)
	if !ok {
		return nil, false
	}
	return sc.task, true
}
