package queue

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/jobkit/pkg/failure"
)

var (
	// ErrNoJobToClaim is returned by Storage.Claim when no job is eligible.
	ErrNoJobToClaim = errors.New("no job to claim")

	// ErrJobNotFound is returned when a job ID is unknown to the storage.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotProcessing is returned when settling a job that is not claimed.
	ErrJobNotProcessing = errors.New("job is not processing")

	// ErrJobExists is returned when enqueuing a job whose ID is already stored.
	ErrJobExists = errors.New("job already exists")

	ErrStorageNil      = fmt.Errorf("%w: storage cannot be nil", failure.ErrConfiguration)
	ErrJobNil          = fmt.Errorf("%w: job cannot be nil", failure.ErrConfiguration)
	ErrHandlerNil      = fmt.Errorf("%w: handler cannot be nil", failure.ErrConfiguration)
	ErrQueueNameEmpty  = fmt.Errorf("%w: queue name cannot be empty", failure.ErrConfiguration)
	ErrInputMarshal    = fmt.Errorf("%w: failed to marshal job input", failure.ErrConfiguration)
	ErrInvalidInput    = errors.New("failed to decode job input")
	ErrOutputMarshal   = errors.New("failed to marshal job output")
	ErrQueueRegistered = fmt.Errorf("%w: queue already registered", failure.ErrConfiguration)

	// ErrQueueNotFound is returned by Registry lookups for unknown names.
	ErrQueueNotFound = errors.New("queue not registered")

	// ErrServerStarted is returned when starting a server twice.
	ErrServerStarted = errors.New("server already started")

	// ErrServerStopped is returned when starting a server that was stopped.
	ErrServerStopped = errors.New("server stopped")

	// ErrShutdownTimeout is returned by Stop when in-flight jobs outlive the
	// stop context. They are aborted and keep settling in the background.
	ErrShutdownTimeout = errors.New("shutdown deadline exceeded, in-flight jobs aborted")

	// ErrInvalidSchedule is returned for malformed or incomplete schedules.
	ErrInvalidSchedule = fmt.Errorf("%w: invalid schedule", failure.ErrConfiguration)

	// ErrScheduleRegistered is returned when a schedule name is taken.
	ErrScheduleRegistered = fmt.Errorf("%w: schedule already registered", failure.ErrConfiguration)

	// ErrJobFailed is returned by Client.Wait for jobs that settled as failed.
	ErrJobFailed = errors.New("job failed")
)
