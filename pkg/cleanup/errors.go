package cleanup

import "errors"

var (
	// ErrNoRegistry is returned by Register when the context carries no registry.
	ErrNoRegistry = errors.New("no cleanup registry in context")

	// ErrEmptyKey is returned by Register for an empty key.
	ErrEmptyKey = errors.New("cleanup key cannot be empty")

	// ErrNilCallback is returned by Register for a nil callback.
	ErrNilCallback = errors.New("cleanup callback cannot be nil")
)
