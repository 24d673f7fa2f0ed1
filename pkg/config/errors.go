package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrParsingFile is returned when a configuration file cannot be decoded.
	ErrParsingFile = errors.New("failed to parse configuration file")

	// ErrNilPointer is returned when a nil pointer is provided to a loader.
	ErrNilPointer = errors.New("nil pointer provided to config loader")
)
