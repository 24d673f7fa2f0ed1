package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/taskgraph"
)

// JobRunner runs a graph task as a job: it enqueues the task input through a
// client and waits for a server to settle the job.
type JobRunner struct {
	client *Client
	opts   []EnqueueOption
}

// TaskRunner returns a taskgraph.Runner backed by client.
func TaskRunner(client *Client, opts ...EnqueueOption) *JobRunner {
	return &JobRunner{client: client, opts: opts}
}

// Run enqueues Input.Value, or the producer outputs when Value is nil, and
// returns the job output as json.RawMessage. Aborting the task stops waiting;
// the job itself stays queued.
func (r *JobRunner) Run(ctx context.Context, in taskgraph.Input) (any, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: job runner has no client", failure.ErrConfiguration)
	}

	input := in.Value
	if input == nil && len(in.Deps) > 0 {
		input = in.Deps
	}

	job, err := r.client.Enqueue(ctx, input, r.opts...)
	if err != nil {
		return nil, err
	}
	taskgraph.ReportProgress(ctx, 0, "job "+job.ID.String()+" enqueued")

	done, err := r.client.Wait(ctx, job.ID)
	switch {
	case errors.Is(err, ErrJobFailed):
		return nil, failure.Terminal(err)
	case err != nil:
		return nil, err
	}

	taskgraph.ReportProgress(ctx, 1, "job "+job.ID.String()+" completed")
	return json.RawMessage(done.Output), nil
}
