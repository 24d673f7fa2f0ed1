package binder_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/binder"
)

func TestBindJSON(t *testing.T) {
	t.Parallel()

	type enqueueRequest struct {
		Input       map[string]any `json:"input"`
		Delay       string         `json:"delay"`
		MaxAttempts int            `json:"max_attempts"`
	}

	newRequest := func(body, contentType string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/queues/emails/jobs", bytes.NewBufferString(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req
	}

	t.Run("valid JSON binding", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{"input":{"to":"a@b.c"},"delay":"5s","max_attempts":3}`, "application/json"), &result)

		require.NoError(t, err)
		assert.Equal(t, "a@b.c", result.Input["to"])
		assert.Equal(t, "5s", result.Delay)
		assert.Equal(t, 3, result.MaxAttempts)
	})

	t.Run("content type with charset", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{"delay":"1m"}`, "application/json; charset=utf-8"), &result)

		require.NoError(t, err)
		assert.Equal(t, "1m", result.Delay)
	})

	t.Run("missing content type", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{}`, ""), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrMissingContentType))
		assert.Contains(t, err.Error(), "expected application/json")
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{}`, "text/plain"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrUnsupportedMediaType))
		assert.Contains(t, err.Error(), "got text/plain")
	})

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest("", "application/json"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrInvalidJSON))
		assert.Contains(t, err.Error(), "empty body")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{"delay":`, "application/json"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrInvalidJSON))
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{"priority":1}`, "application/json"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrInvalidJSON))
		assert.Contains(t, err.Error(), "priority")
	})

	t.Run("trailing data", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest(`{"delay":"1s"} {"delay":"2s"}`, "application/json"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrInvalidJSON))
		assert.Contains(t, err.Error(), "unexpected data")
	})

	t.Run("trailing whitespace is accepted", func(t *testing.T) {
		t.Parallel()

		var result enqueueRequest
		err := binder.BindJSON(0)(newRequest("{\"delay\":\"1s\"}\n  ", "application/json"), &result)

		require.NoError(t, err)
		assert.Equal(t, "1s", result.Delay)
	})

	t.Run("body over the limit", func(t *testing.T) {
		t.Parallel()

		body := `{"delay":"` + strings.Repeat("x", 128) + `"}`
		var result enqueueRequest
		err := binder.BindJSON(32)(newRequest(body, "application/json"), &result)

		require.Error(t, err)
		assert.True(t, errors.Is(err, binder.ErrBodyTooLarge))
	})
}
