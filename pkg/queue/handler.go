package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/jobkit/pkg/failure"
)

// Handler executes job bodies. Returned errors are classified with
// pkg/failure: terminal errors fail the job at once, others are retried.
type Handler interface {
	Handle(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, input)
}

// TypedHandlerFunc is a job body working on decoded values.
type TypedHandlerFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// NewHandler wraps fn with JSON decoding of the input and encoding of the
// output. Inputs that fail to decode are terminal errors.
func NewHandler[In, Out any](fn TypedHandlerFunc[In, Out]) Handler {
	return HandlerFunc(func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, failure.Terminal(fmt.Errorf("%w: %w", ErrInvalidInput, err))
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, failure.Terminal(fmt.Errorf("%w: %w", ErrOutputMarshal, err))
		}
		return data, nil
	})
}
