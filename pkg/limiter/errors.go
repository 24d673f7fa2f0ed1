package limiter

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/jobkit/pkg/failure"
)

var (
	ErrInvalidLimit    = fmt.Errorf("%w: limit must be positive", failure.ErrConfiguration)
	ErrInvalidPrefetch = fmt.Errorf("%w: prefetch must not be negative", failure.ErrConfiguration)
	ErrInvalidWindow   = fmt.Errorf("%w: window must be positive", failure.ErrConfiguration)
	ErrNameRequired    = fmt.Errorf("%w: limiter name is required", failure.ErrConfiguration)
	ErrStorageRequired = fmt.Errorf("%w: rate storage is required", failure.ErrConfiguration)

	// ErrStorageClosed is returned by storages used after Close.
	ErrStorageClosed = errors.New("rate storage closed")
)
