package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

// builtinHandlers is the closed set of handlers a topology may reference.
var builtinHandlers = map[string]queue.Handler{
	"echo":  queue.HandlerFunc(echo),
	"sleep": queue.NewHandler(sleep),
}

func echo(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
	return input, nil
}

type sleepInput struct {
	Duration string `json:"duration"`
}

type sleepOutput struct {
	Slept string `json:"slept"`
}

// sleep waits for the requested duration or until the job is aborted.
func sleep(ctx context.Context, in sleepInput) (sleepOutput, error) {
	d, err := time.ParseDuration(in.Duration)
	if err != nil || d < 0 {
		return sleepOutput{}, failure.Terminal(fmt.Errorf("invalid duration %q", in.Duration))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return sleepOutput{}, context.Cause(ctx)
	case <-timer.C:
		return sleepOutput{Slept: d.String()}, nil
	}
}

func lookupHandler(name string) (queue.Handler, error) {
	h, ok := builtinHandlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handler %q", failure.ErrConfiguration, name)
	}
	return h, nil
}
