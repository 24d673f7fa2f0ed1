package taskgraph

// Status is the lifecycle state of a task or graph.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusAborting  Status = "ABORTING"
	StatusAborted   Status = "ABORTED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// rank orders statuses so transitions can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusAborting:
		return 2
	case StatusCompleted, StatusFailed, StatusAborted:
		return 3
	default:
		return -1
	}
}

func (s Status) canMoveTo(next Status) bool {
	return next.rank() > s.rank()
}
