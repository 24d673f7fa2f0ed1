package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Scheduler enqueues jobs on a recurring schedule.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]*scheduledJob
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type scheduledJob struct {
	name     string
	client   *Client
	schedule Schedule
	input    any
	next     time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often due entries are looked up.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerClock replaces time.Now. Intended for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		entries:  make(map[string]*scheduledJob),
		interval: time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("queue.scheduler"))
	return s
}

// Add registers a recurring job enqueued through client. The first run is
// schedule.Next(now).
func (s *Scheduler) Add(name string, client *Client, schedule Schedule, input any) error {
	if name == "" || client == nil || schedule == nil {
		return fmt.Errorf("%w: name, client and schedule are required", ErrInvalidSchedule)
	}

	now := s.now()
	first := schedule.Next(now)
	if !first.After(now) {
		return fmt.Errorf("%w: %s does not advance", ErrInvalidSchedule, schedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrScheduleRegistered, name)
	}
	s.entries[name] = &scheduledJob{
		name:     name,
		client:   client,
		schedule: schedule,
		input:    input,
		next:     first,
	}
	return nil
}

// Remove drops a recurring job.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Names returns the registered entry names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run enqueues due jobs until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick enqueues every entry that is due. Missed runs collapse into one.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*scheduledJob
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		job, err := e.client.Enqueue(ctx, e.input)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue scheduled job",
				slog.String("schedule", e.name), logger.Error(err))
			continue
		}
		s.mu.Lock()
		next := e.schedule.Next(e.next)
		for !next.After(now) {
			next = e.schedule.Next(next)
		}
		e.next = next
		s.mu.Unlock()

		s.logger.DebugContext(ctx, "scheduled job enqueued",
			slog.String("schedule", e.name),
			logger.JobID(job.ID),
			slog.Time("next_run", next))
	}
}
