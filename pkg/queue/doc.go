// Package queue persists jobs and executes them under limiter admission.
//
// A Client enqueues jobs into a named queue backed by a Storage. A Server
// polls the same queue, claims eligible jobs in enqueue order, runs the
// Handler and persists the outcome. Storage implementations live in this
// package (MemoryStorage) and in pkg/pg, pkg/redis, pkg/mongo and pkg/badger.
//
// # Server loop
//
// Each poll cycle the server claims up to the prefetch depth of its limiters,
// one job at a time: it checks every limiter is ready, claims the oldest
// eligible job, then acquires the limiters. If a limiter refuses after the
// claim (another process took the capacity) the job is released back to
// pending without counting an attempt. Job bodies run in their own goroutine
// with a context that is canceled with cause failure.ErrAborted when the
// server aborts. Panics are recovered and treated as failures; no job error
// ever stops the loop.
//
// # Outcomes
//
//   - nil error: completed, output stored.
//   - aborted by server shutdown: released to pending.
//   - failure.IsTerminal or last attempt: failed.
//   - anything else: retrying with RunAt pushed by the Backoff.
//
// Every execution gets its own cleanup.Registry, drained after the body
// returns and before the outcome is persisted.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	conc, _ := limiter.NewConcurrency(4, 2)
//
//	q, err := queue.NewQueue("thumbnails", storage,
//	    queue.NewHandler(func(ctx context.Context, in ResizeInput) (ResizeOutput, error) {
//	        return resize(ctx, in)
//	    }),
//	    []queue.ServerOption{queue.WithLimiters(conc)},
//	)
//	if err != nil {
//	    return err
//	}
//	if err := q.Server.Start(ctx); err != nil {
//	    return err
//	}
//	defer q.Server.Stop(context.Background(), queue.StopDrain)
//
//	job, _ := q.Client.Enqueue(ctx, ResizeInput{URL: url})
//	job, err = q.Client.Wait(ctx, job.ID)
//	out, err := queue.Result[ResizeOutput](job)
//
// Registry keeps named queues discoverable. Default returns a process-wide
// registry; tests call ResetDefault or pass their own registry through
// WithRegistry.
package queue
