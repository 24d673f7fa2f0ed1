package core

import (
	"errors"
	"net/http"
)

// HTTPError represents an HTTP error with status code and a stable key that
// clients can match on. Err is the optional underlying cause.
type HTTPError struct {
	Code int    // HTTP status code
	Key  string // Machine-readable key (e.g., "not_found", "bad_request")
	Err  error
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Key
}

// Unwrap returns the underlying cause.
func (e HTTPError) Unwrap() error { return e.Err }

// Is matches HTTP errors with the same status code and key, so wrapped
// values still match the sentinels below.
func (e HTTPError) Is(target error) bool {
	var t HTTPError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Key == e.Key
}

// Wrap returns a copy of e carrying err as its cause.
func (e HTTPError) Wrap(err error) HTTPError {
	e.Err = err
	return e
}

// 4xx Client Errors
var (
	ErrBadRequest            = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrNotFound              = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrMethodNotAllowed      = HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed"}
	ErrConflict              = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrRequestEntityTooLarge = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "request_entity_too_large"}
	ErrUnsupportedMediaType  = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}
	ErrUnprocessableEntity   = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
)

// 5xx Server Errors
var (
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// NewHTTPError creates a custom HTTP error with the given status code and key.
//
// Example:
//
//	err := core.NewHTTPError(http.StatusConflict, "job_exists")
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}
