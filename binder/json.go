// Package binder decodes HTTP request bodies into request structs.
package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBodySize bounds request bodies when BindJSON is given no limit.
const DefaultMaxBodySize int64 = 1 << 20

// BindJSON creates a JSON binder function. Bodies larger than maxBytes are
// rejected with ErrBodyTooLarge; a non-positive maxBytes uses
// DefaultMaxBodySize.
//
// Example:
//
//	bind := binder.BindJSON(0)
//
//	var req enqueueRequest
//	if err := bind(r, &req); err != nil {
//		_ = core.JSONError(core.ErrBadRequest.Wrap(err)).Render(w, r)
//		return
//	}
func BindJSON(maxBytes int64) func(r *http.Request, v any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}

	return func(r *http.Request, v any) error {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}

		mediaType := contentType
		if idx := strings.Index(contentType, ";"); idx != -1 {
			mediaType = strings.TrimSpace(contentType[:idx])
		}
		if !strings.EqualFold(mediaType, "application/json") {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, mediaType)
		}

		decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes))
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(v); err != nil {
			return decodeError(err, maxBytes)
		}

		// Ensure entire body was consumed
		var extra json.RawMessage
		if err := decoder.Decode(&extra); err != io.EOF {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytes)
			}
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}

		return nil
	}
}

func decodeError(err error, maxBytes int64) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytes)
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
}
