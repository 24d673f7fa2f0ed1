// Package limiter governs how fast and how much work a job server admits.
//
// Every limiter implements Limiter: Ready peeks at capacity without taking
// it, Acquire takes one unit atomically, Release gives back what a settled job
// held. Three implementations ship with the package:
//
//   - Concurrency bounds simultaneously executing jobs in one process and
//     exposes a prefetch depth through Prefetcher.
//   - Rate is a sliding window over execution starts persisted in a Storage.
//     Admission is a single RecordIfBelow call, so servers sharing one storage
//     observe one limit per name.
//   - Local is a process-local token bucket backed by golang.org/x/time/rate.
//
// Set combines limiters and rolls back partial acquisitions.
//
//	conc, _ := limiter.NewConcurrency(4, 2)
//	rate, _ := limiter.NewRate(store, "openai", limiter.RateConfig{MaxExecutions: 60, WindowSizeInSeconds: 60})
//	srv := queue.NewServer(storage, handler, queue.WithLimiters(conc, rate))
package limiter
