package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/jobkit/pkg/cleanup"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// StopMode selects what happens to in-flight jobs on Stop.
type StopMode int

const (
	// StopDrain lets in-flight jobs finish.
	StopDrain StopMode = iota
	// StopAbort cancels the context of in-flight jobs. Aborted jobs are
	// released back to pending without counting an attempt.
	StopAbort
)

type serverState int

const (
	stateIdle serverState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Server polls one queue and executes claimed jobs under limiter admission.
type Server struct {
	storage         Storage
	handler         Handler
	queue           string
	workerID        string
	limiters        *limiter.Set
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	backoff         Backoff
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer

	mu         sync.Mutex
	state      serverState
	stopLoop   context.CancelFunc
	abortJobs  context.CancelCauseFunc
	jobsCtx    context.Context
	loopDone   chan struct{}
	settled    chan struct{}
	inflight   sync.WaitGroup
	wake       chan struct{}
	processing int
}

// NewServer creates a server for the default queue unless WithQueueName is given.
func NewServer(storage Storage, handler Handler, opts ...ServerOption) (*Server, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	o := &serverOptions{
		queue:           DefaultQueueName,
		workerID:        uuid.NewString(),
		pollInterval:    time.Second,
		shutdownTimeout: 30 * time.Second,
		backoff:         DefaultBackoff,
		logger:          slog.Default(),
		tracer:          otel.Tracer("github.com/dmitrymomot/jobkit/pkg/queue"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if len(o.limiters) == 0 {
		single, err := limiter.NewConcurrency(1, 1)
		if err != nil {
			return nil, err
		}
		o.limiters = []limiter.Limiter{single}
	}

	return &Server{
		storage:         storage,
		handler:         handler,
		queue:           o.queue,
		workerID:        o.workerID,
		limiters:        limiter.NewSet(o.limiters...),
		pollInterval:    o.pollInterval,
		shutdownTimeout: o.shutdownTimeout,
		backoff:         o.backoff,
		logger:          o.logger.With(logger.Component("queue.server"), logger.Queue(o.queue), logger.WorkerID(o.workerID)),
		metrics:         o.metrics,
		tracer:          o.tracer,
		wake:            make(chan struct{}, 1),
		settled:         make(chan struct{}),
	}, nil
}

// Queue returns the name of the queue the server draws from.
func (s *Server) Queue() string { return s.queue }

// WorkerID returns the identity recorded on claimed jobs.
func (s *Server) WorkerID() string { return s.workerID }

// Processing returns the number of job bodies executing right now.
func (s *Server) Processing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Start prepares the storage and begins polling in the background. Canceling
// ctx stops polling; in-flight jobs are unaffected until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrServerStarted
	case stateStopping, stateStopped:
		return ErrServerStopped
	}

	if err := s.storage.Setup(ctx); err != nil {
		return fmt.Errorf("setup storage for queue %s: %w", s.queue, err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	jobsCtx, abortJobs := context.WithCancelCause(context.WithoutCancel(ctx))
	s.stopLoop = stopLoop
	s.jobsCtx = jobsCtx
	s.abortJobs = abortJobs
	s.loopDone = make(chan struct{})
	s.state = stateRunning

	go s.loop(loopCtx)

	s.logger.InfoContext(ctx, "queue server started",
		slog.Duration("poll_interval", s.pollInterval),
		slog.Int("prefetch", s.limiters.Prefetch()))
	return nil
}

// Stop ceases polling and settles in-flight jobs according to mode. When ctx
// ends before they settle, they are aborted and Stop returns
// ErrShutdownTimeout without waiting further; Wait observes the final
// settlement. Stop is idempotent: later calls return nil.
func (s *Server) Stop(ctx context.Context, mode StopMode) error {
	s.mu.Lock()
	if s.state != stateRunning {
		if s.state == stateIdle {
			s.state = stateStopped
			close(s.settled)
		}
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopping
	s.mu.Unlock()

	s.stopLoop()
	<-s.loopDone

	if mode == StopAbort {
		s.logger.InfoContext(ctx, "aborting in-flight jobs")
		s.abortJobs(failure.ErrAborted)
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		s.abortJobs(nil)
		s.mu.Lock()
		s.state = stateStopped
		s.mu.Unlock()
		close(s.settled)
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.InfoContext(ctx, "queue server stopped")
		return nil
	case <-ctx.Done():
		s.abortJobs(failure.ErrAborted)
		s.logger.WarnContext(ctx, "shutdown deadline exceeded, in-flight jobs aborted")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, context.Cause(ctx))
	}
}

// Wait blocks until the server has stopped and every in-flight job settled.
// It returns at once for a server that never started and was stopped.
func (s *Server) Wait() {
	<-s.settled
}

// Notify wakes the poll loop so a freshly enqueued job is claimed without
// waiting for the poll interval.
func (s *Server) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run returns a function for errgroup: it starts the server, blocks until ctx
// ends, then drains within the shutdown timeout.
func (s *Server) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		err := s.Stop(stopCtx, StopDrain)
		s.Wait()
		return err
	}
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.loopDone)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}
		s.poll(ctx)
		timer.Reset(s.pollInterval)
	}
}

// poll claims up to the prefetch depth of jobs back-to-back, stopping at the
// first limiter refusal or empty queue.
func (s *Server) poll(ctx context.Context) {
	for range s.limiters.Prefetch() {
		if ctx.Err() != nil {
			return
		}

		ready, err := s.limiters.Ready(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "limiter check failed", logger.Error(err))
			return
		}
		if !ready {
			s.metrics.claimThrottled(s.queue)
			return
		}

		job, err := s.storage.Claim(ctx, s.queue, s.workerID, time.Now().UTC())
		if errors.Is(err, ErrNoJobToClaim) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "failed to claim job", logger.Error(err))
			}
			return
		}

		ok, err := s.limiters.Acquire(ctx)
		if err != nil || !ok {
			// Another process took the capacity between Ready and Claim.
			if rerr := s.storage.Release(context.WithoutCancel(ctx), job.ID); rerr != nil {
				s.logger.ErrorContext(ctx, "failed to release job", logger.JobID(job.ID), logger.Error(rerr))
			}
			if err != nil {
				s.logger.ErrorContext(ctx, "limiter acquire failed", logger.Error(err))
			}
			s.metrics.claimThrottled(s.queue)
			return
		}

		s.mu.Lock()
		s.processing++
		s.mu.Unlock()
		s.inflight.Add(1)
		go s.process(job)
	}
}

func (s *Server) process(job *Job) {
	defer s.inflight.Done()
	defer func() {
		s.limiters.Release(context.Background())
		s.mu.Lock()
		s.processing--
		s.mu.Unlock()
		s.Notify()
	}()

	attempt := job.Attempts + 1
	ctx := logger.ContextWithAttrs(s.jobsCtx, logger.JobID(job.ID), logger.Attempt(attempt))
	ctx = withJob(ctx, job)
	registry := cleanup.New(cleanup.WithLogger(s.logger))
	ctx = cleanup.WithRegistry(ctx, registry)

	ctx, span := s.tracer.Start(ctx, "queue.job "+s.queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("jobkit.queue", s.queue),
			attribute.String("jobkit.job_id", job.ID.String()),
			attribute.Int("jobkit.attempt", attempt),
		))
	defer span.End()

	s.metrics.jobStarted(s.queue)
	s.logger.DebugContext(ctx, "job started")

	start := time.Now()
	output, err := s.invoke(ctx, job)
	err = failure.FromContext(ctx, err)
	elapsed := time.Since(start)

	if cerr := registry.RunAll(context.WithoutCancel(ctx)); cerr != nil {
		s.logger.WarnContext(ctx, "job cleanup reported errors", logger.Error(cerr))
	}

	outcome := s.settle(context.WithoutCancel(ctx), job, output, err)
	s.metrics.jobSettled(s.queue, outcome, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("jobkit.outcome", outcome))
}

func (s *Server) invoke(ctx context.Context, job *Job) (output []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()
	return s.handler.Handle(ctx, job.Input)
}

// settle persists the outcome of one execution and returns its metric label.
func (s *Server) settle(ctx context.Context, job *Job, output []byte, err error) string {
	attempt := job.Attempts + 1
	var (
		outcome string
		perr    error
	)

	switch {
	case err == nil:
		outcome = OutcomeCompleted
		perr = s.storage.Complete(ctx, job.ID, output)
		s.logger.InfoContext(ctx, "job completed", logger.Duration(time.Since(startedAt(job))))

	case failure.IsAborted(err) && s.jobsCtx.Err() != nil:
		outcome = OutcomeReleased
		perr = s.storage.Release(ctx, job.ID)
		s.logger.InfoContext(ctx, "job aborted by shutdown, released", logger.Error(err))

	case failure.IsTerminal(err) || attempt >= job.MaxAttempts:
		outcome = OutcomeFailed
		perr = s.storage.Fail(ctx, job.ID, err.Error())
		s.logger.ErrorContext(ctx, "job failed",
			slog.String("class", string(failure.Classify(err))),
			slog.Int("max_attempts", job.MaxAttempts),
			logger.Error(err))

	default:
		outcome = OutcomeRetried
		runAt := time.Now().UTC().Add(s.backoff(attempt))
		perr = s.storage.Retry(ctx, job.ID, err.Error(), runAt)
		s.logger.WarnContext(ctx, "job failed, retry scheduled",
			slog.Time("run_at", runAt),
			logger.Error(err))
	}

	if perr != nil {
		s.logger.ErrorContext(ctx, "failed to persist job outcome",
			slog.String("outcome", outcome),
			logger.Error(perr))
	}
	return outcome
}

func startedAt(job *Job) time.Time {
	if job.StartedAt != nil {
		return *job.StartedAt
	}
	return time.Now()
}

type jobKey struct{}

func withJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobKey{}, job)
}

// JobFromContext returns the job being executed under ctx. The returned value
// is a snapshot taken at claim time.
func JobFromContext(ctx context.Context) (*Job, bool) {
	job, ok := ctx.Value(jobKey{}).(*Job)
	return job, ok
}
