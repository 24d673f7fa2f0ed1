package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobkit/core"
	"github.com/dmitrymomot/jobkit/pkg/failure"
	"github.com/dmitrymomot/jobkit/pkg/httpserver"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func testQueueConfig() queue.Config {
	return queue.Config{
		PollInterval:    10 * time.Millisecond,
		ShutdownTimeout: time.Second,
		MaxAttempts:     3,
		BackoffInitial:  time.Millisecond,
		BackoffMax:      10 * time.Millisecond,
	}
}

type testEnv struct {
	server   *httptest.Server
	registry *queue.Registry
}

func newTestEnv(t *testing.T, probes map[string]httpserver.Probe) *testEnv {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	be, err := openBackend(context.Background(), driverMemory, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close(context.Background()) })

	promReg := prometheus.NewRegistry()
	topo := &topology{Queues: []queueSpec{
		{Name: "emails", Handler: "echo"},
		{Name: "reports", Handler: "sleep"},
	}}
	registry, err := buildRegistry(topo, be, testQueueConfig(), queue.NewMetrics(promReg), log)
	require.NoError(t, err)

	srv := httptest.NewServer(newAPI(apiOptions{
		registry: registry,
		gatherer: promReg,
		probes:   probes,
		logger:   log,
	}))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

type envelope[T any] struct {
	Code  string            `json:"code"`
	Data  T                 `json:"data"`
	Error *core.ErrorDetail `json:"error"`
}

func decode[T any](t *testing.T, data []byte) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func decodeJob(t *testing.T, data []byte) queue.Job {
	t.Helper()
	return decode[queue.Job](t, data).Data
}

func TestAPI(t *testing.T) {
	t.Parallel()

	t.Run("lists queues", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		status, body := env.do(t, http.MethodGet, "/queues", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"code":"queues","data":["emails","reports"]}`, string(body))
	})

	t.Run("enqueue then inspect", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		status, body := env.do(t, http.MethodPost, "/queues/emails/jobs", `{"input":{"to":"a@b.c"},"delay":"1h","max_attempts":7}`)
		require.Equal(t, http.StatusCreated, status, string(body))
		created := decode[queue.Job](t, body)
		assert.Equal(t, "job_created", created.Code)
		job := created.Data
		assert.Equal(t, "emails", job.Queue)
		assert.Equal(t, queue.StatusPending, job.Status)
		assert.Equal(t, 7, job.MaxAttempts)
		assert.JSONEq(t, `{"to":"a@b.c"}`, string(job.Input))
		assert.True(t, job.RunAt.After(time.Now().Add(59*time.Minute)))

		status, body = env.do(t, http.MethodGet, "/queues/emails/jobs/"+job.ID.String(), "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, job.ID, decodeJob(t, body).ID)

		status, body = env.do(t, http.MethodGet, "/queues/emails/size", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"code":"queue_size","data":{"queue":"emails","size":1}}`, string(body))
	})

	t.Run("enqueue without input", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		status, body := env.do(t, http.MethodPost, "/queues/emails/jobs", `{}`)
		require.Equal(t, http.StatusCreated, status, string(body))
		assert.Empty(t, decodeJob(t, body).Input)
	})

	t.Run("bad requests", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		cases := []struct {
			name   string
			method string
			path   string
			body   string
			want   int
		}{
			{"unknown queue size", http.MethodGet, "/queues/nope/size", "", http.StatusNotFound},
			{"unknown queue enqueue", http.MethodPost, "/queues/nope/jobs", `{}`, http.StatusNotFound},
			{"malformed body", http.MethodPost, "/queues/emails/jobs", `{`, http.StatusBadRequest},
			{"unknown field", http.MethodPost, "/queues/emails/jobs", `{"priority":1}`, http.StatusBadRequest},
			{"trailing data", http.MethodPost, "/queues/emails/jobs", `{} {}`, http.StatusBadRequest},
			{"oversized body", http.MethodPost, "/queues/emails/jobs", `{"input":"` + strings.Repeat("x", maxRequestBody) + `"}`, http.StatusRequestEntityTooLarge},
			{"bad delay", http.MethodPost, "/queues/emails/jobs", `{"delay":"later"}`, http.StatusBadRequest},
			{"negative attempts", http.MethodPost, "/queues/emails/jobs", `{"max_attempts":-1}`, http.StatusBadRequest},
			{"bad job id", http.MethodGet, "/queues/emails/jobs/42", "", http.StatusBadRequest},
			{"unknown job", http.MethodGet, "/queues/emails/jobs/" + uuid.NewString(), "", http.StatusNotFound},
		}
		for _, tc := range cases {
			status, body := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, status, "%s: %s", tc.name, body)
			if detail := decode[json.RawMessage](t, body).Error; assert.NotNil(t, detail, tc.name) {
				assert.NotEmpty(t, detail.Message, tc.name)
			}
		}
	})

	t.Run("error envelope", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		status, body := env.do(t, http.MethodGet, "/queues/nope/size", "")
		require.Equal(t, http.StatusNotFound, status)
		resp := decode[json.RawMessage](t, body)
		assert.Equal(t, "not_found", resp.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "not_found", resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "nope")
	})

	t.Run("enqueue requires a JSON content type", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		for _, contentType := range []string{"", "text/plain"} {
			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
				env.server.URL+"/queues/emails/jobs", bytes.NewBufferString(`{}`))
			require.NoError(t, err)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			resp, err := env.server.Client().Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, contentType)
		}

		q, err := env.registry.Get("emails")
		require.NoError(t, err)
		size, err := q.Client.Size(context.Background())
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("job of another queue is not found", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		status, body := env.do(t, http.MethodPost, "/queues/emails/jobs", `{}`)
		require.Equal(t, http.StatusCreated, status)
		job := decodeJob(t, body)

		status, _ = env.do(t, http.MethodGet, "/queues/reports/jobs/"+job.ID.String(), "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("health and metrics", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, map[string]httpserver.Probe{
			"storage": func(context.Context) error { return nil },
		})

		status, body := env.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "READY", string(body))

		_, _ = env.do(t, http.MethodPost, "/queues/emails/jobs", `{}`)
		status, body = env.do(t, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(body), `jobkit_queue_jobs_enqueued_total{queue="emails"} 1`)
	})

	t.Run("failing probe", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, map[string]httpserver.Probe{
			"storage": func(context.Context) error { return failure.ErrAborted },
		})

		status, body := env.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "NOT_READY", string(body))
	})
}

func TestAPI_ProcessesJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, env.registry.StartAll(ctx))
	t.Cleanup(func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = env.registry.StopAll(stopCtx, queue.StopAbort)
	})

	status, body := env.do(t, http.MethodPost, "/queues/emails/jobs", `{"input":["hello"]}`)
	require.Equal(t, http.StatusCreated, status)
	id := decodeJob(t, body).ID.String()

	var job queue.Job
	require.Eventually(t, func() bool {
		resp, err := env.server.Client().Get(env.server.URL + "/queues/emails/jobs/" + id)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got envelope[queue.Job]
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			return false
		}
		job = got.Data
		return job.Status == queue.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `["hello"]`, string(job.Output))
	assert.Zero(t, job.Attempts)
}

func TestBuildScheduler(t *testing.T) {
	t.Parallel()

	be, err := openBackend(context.Background(), driverMemory, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close(context.Background()) })

	topo := &topology{
		Queues:    []queueSpec{{Name: "reports", Handler: "sleep"}},
		Schedules: []scheduleSpec{{Name: "tick", Queue: "reports", At: "every 1m", Input: map[string]any{"duration": "1ms"}}},
	}
	log := slog.New(slog.DiscardHandler)
	registry, err := buildRegistry(topo, be, testQueueConfig(), nil, log)
	require.NoError(t, err)

	scheduler, err := buildScheduler(topo, registry, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"tick"}, scheduler.Names())

	topo.Schedules[0].Queue = "missing"
	_, err = buildScheduler(topo, registry, log)
	require.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := openBackend(context.Background(), "cassandra", nil)
	require.ErrorIs(t, err, failure.ErrConfiguration)
}
