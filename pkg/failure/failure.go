package failure

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid input or setup. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrAborted marks the terminal outcome of cooperative cancellation.
	ErrAborted = errors.New("aborted")
)

// Kind is the class of an error.
type Kind string

const (
	KindNone          Kind = ""
	KindConfiguration Kind = "configuration"
	KindAborted       Kind = "aborted"
	KindTerminal      Kind = "terminal"
	KindTransient     Kind = "transient"
)

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as non-retryable. Returns nil for a nil error.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	var te *terminalError
	if errors.As(err, &te) {
		return err
	}
	return &terminalError{err: err}
}

// Aborted returns an error matching ErrAborted and, when present, the cause.
func Aborted(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	if errors.Is(cause, ErrAborted) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// IsAborted reports whether err is the result of cooperative cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTerminal reports whether err must not be retried.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var te *terminalError
	return errors.As(err, &te) || IsConfiguration(err) || IsAborted(err)
}

// Classify returns the class of err.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsConfiguration(err):
		return KindConfiguration
	case IsAborted(err):
		return KindAborted
	case IsTerminal(err):
		return KindTerminal
	default:
		return KindTransient
	}
}

// FromContext converts a body error into an aborted error when it was caused by
// ctx being canceled. Other errors are returned unchanged.
func FromContext(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || IsAborted(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Aborted(context.Cause(ctx))
	}
	return err
}
