package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/jobkit/pkg/config"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

var errInvalidTopology = fmt.Errorf("%w: invalid topology", failure.ErrConfiguration)

type topology struct {
	Queues    []queueSpec    `yaml:"queues"`
	Schedules []scheduleSpec `yaml:"schedules"`
}

type queueSpec struct {
	Name          string              `yaml:"name"`
	Handler       string              `yaml:"handler"`
	PollInterval  time.Duration       `yaml:"poll_interval"`
	MaxConcurrent int                 `yaml:"max_concurrent"`
	MaxPrefetch   int                 `yaml:"max_prefetch"`
	MaxAttempts   int                 `yaml:"max_attempts"`
	Rate          *limiter.RateConfig `yaml:"rate"`
	Local         *localRateSpec      `yaml:"local_rate"`
}

type localRateSpec struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type scheduleSpec struct {
	Name  string `yaml:"name"`
	Queue string `yaml:"queue"`
	At    string `yaml:"at"`
	Input any    `yaml:"input"`
}

func loadTopology(path string) (*topology, error) {
	var t topology
	if err := config.LoadYAML(path, &t); err != nil {
		return nil, err
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *topology) validate() error {
	if len(t.Queues) == 0 {
		return fmt.Errorf("%w: no queues defined", errInvalidTopology)
	}

	var errs []error
	names := make(map[string]struct{}, len(t.Queues))
	for i, q := range t.Queues {
		if q.Name == "" {
			errs = append(errs, fmt.Errorf("%w: queue #%d has no name", errInvalidTopology, i+1))
			continue
		}
		if _, dup := names[q.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: queue %s defined twice", errInvalidTopology, q.Name))
		}
		names[q.Name] = struct{}{}
		if _, err := lookupHandler(q.Handler); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Name, err))
		}
		if q.MaxConcurrent < 0 || q.MaxPrefetch < 0 {
			errs = append(errs, fmt.Errorf("%w: queue %s has negative limits", errInvalidTopology, q.Name))
		}
		if q.Rate != nil {
			if err := q.Rate.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("queue %s: %w", q.Name, err))
			}
		}
		if q.Local != nil && (q.Local.PerSecond <= 0 || q.Local.Burst <= 0) {
			errs = append(errs, fmt.Errorf("%w: queue %s local_rate needs positive per_second and burst", errInvalidTopology, q.Name))
		}
	}

	schedules := make(map[string]struct{}, len(t.Schedules))
	for _, s := range t.Schedules {
		if _, dup := schedules[s.Name]; dup || s.Name == "" {
			errs = append(errs, fmt.Errorf("%w: schedule %q is empty or duplicated", errInvalidTopology, s.Name))
		}
		schedules[s.Name] = struct{}{}
		if _, ok := names[s.Queue]; !ok {
			errs = append(errs, fmt.Errorf("%w: schedule %s targets unknown queue %q", errInvalidTopology, s.Name, s.Queue))
		}
		if _, err := queue.ParseSchedule(s.At); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// limiters builds the admission chain of one queue. Rate windows are shared
// through rates, keyed by queue name.
func (q queueSpec) limiters(rates limiter.Storage) ([]limiter.Limiter, error) {
	maxConcurrent := q.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 1
	}
	prefetch := q.MaxPrefetch
	if prefetch == 0 {
		prefetch = maxConcurrent
	}
	conc, err := limiter.NewConcurrency(maxConcurrent, prefetch)
	if err != nil {
		return nil, err
	}
	out := []limiter.Limiter{conc}

	if q.Rate != nil {
		rate, err := limiter.NewRate(rates, "queue:"+q.Name, *q.Rate)
		if err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	if q.Local != nil {
		local, err := limiter.NewLocal(q.Local.PerSecond, q.Local.Burst)
		if err != nil {
			return nil, err
		}
		out = append(out, local)
	}
	return out, nil
}
