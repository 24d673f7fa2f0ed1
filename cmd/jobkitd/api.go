package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/jobkit/binder"
	"github.com/dmitrymomot/jobkit/core"
	"github.com/dmitrymomot/jobkit/pkg/httpserver"
	"github.com/dmitrymomot/jobkit/pkg/logger"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

const maxRequestBody = 1 << 20

type apiOptions struct {
	registry *queue.Registry
	gatherer prometheus.Gatherer
	probes   map[string]httpserver.Probe
	logger   *slog.Logger
}

type enqueueRequest struct {
	Input       json.RawMessage `json:"input"`
	Delay       string          `json:"delay,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

type sizeResponse struct {
	Queue string `json:"queue"`
	Size  int    `json:"size"`
}

// newAPI builds the admin router.
func newAPI(opts apiOptions) http.Handler {
	log := opts.logger
	if log == nil {
		log = slog.Default()
	}
	a := &api{
		registry: opts.registry,
		bind:     binder.BindJSON(maxRequestBody),
		log:      log.With(logger.Component("api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.logRequests, middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(a.log, opts.probes))
	if opts.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/queues", func(qr chi.Router) {
		qr.Get("/", a.handle(a.listQueues))
		qr.Route("/{name}", func(one chi.Router) {
			one.Get("/size", a.handle(a.size))
			one.Post("/jobs", a.handle(a.enqueue))
			one.Get("/jobs/{id}", a.handle(a.getJob))
		})
	})
	return r
}

type api struct {
	registry *queue.Registry
	bind     func(r *http.Request, v any) error
	log      *slog.Logger
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		ctx := logger.ContextWithAttrs(r.Context(), slog.String("request_id", middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r.WithContext(ctx))
		a.log.DebugContext(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}

type apiHandler func(r *http.Request) core.Response

// handle renders the response built by h.
func (a *api) handle(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(r).Render(w, r); err != nil {
			a.log.ErrorContext(r.Context(), "render response", logger.Error(err))
		}
	}
}

// fail logs server-side errors and renders err as a JSON error.
func (a *api) fail(r *http.Request, err error) core.Response {
	var httpErr core.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	}
	return core.JSONError(err)
}

func (a *api) listQueues(_ *http.Request) core.Response {
	return core.JSON("queues", a.registry.Names(), nil)
}

func (a *api) size(r *http.Request) core.Response {
	q, err := a.lookup(r)
	if err != nil {
		return a.fail(r, err)
	}
	n, err := q.Client.Size(r.Context())
	if err != nil {
		return a.fail(r, fmt.Errorf("queue %s size: %w", q.Name, err))
	}
	return core.JSON("queue_size", sizeResponse{Queue: q.Name, Size: n}, nil)
}

func (a *api) enqueue(r *http.Request) core.Response {
	q, err := a.lookup(r)
	if err != nil {
		return a.fail(r, err)
	}

	var req enqueueRequest
	if err := a.bind(r, &req); err != nil {
		return a.fail(r, bindError(err))
	}

	var opts []queue.EnqueueOption
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			return a.fail(r, core.ErrBadRequest.Wrap(fmt.Errorf("invalid delay %q", req.Delay)))
		}
		opts = append(opts, queue.WithDelay(d))
	}
	if req.MaxAttempts < 0 {
		return a.fail(r, core.ErrBadRequest.Wrap(errors.New("max_attempts must not be negative")))
	}
	if req.MaxAttempts > 0 {
		opts = append(opts, queue.WithJobMaxAttempts(req.MaxAttempts))
	}

	var input any
	if len(req.Input) > 0 {
		input = req.Input
	}
	job, err := q.Client.Enqueue(r.Context(), input, opts...)
	if err != nil {
		return a.fail(r, fmt.Errorf("enqueue to %s: %w", q.Name, err))
	}
	return core.JSONWithStatus(http.StatusCreated, "job_created", job, nil)
}

func (a *api) getJob(r *http.Request) core.Response {
	q, err := a.lookup(r)
	if err != nil {
		return a.fail(r, err)
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return a.fail(r, core.ErrBadRequest.Wrap(fmt.Errorf("invalid job id: %w", err)))
	}

	job, err := q.Client.Get(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return a.fail(r, core.ErrNotFound.Wrap(err))
	case err != nil:
		return a.fail(r, fmt.Errorf("get job %s: %w", id, err))
	case job.Queue != q.Name:
		return a.fail(r, core.ErrNotFound.Wrap(queue.ErrJobNotFound))
	}
	return core.JSON("job", job, nil)
}

func (a *api) lookup(r *http.Request) (*queue.Queue, error) {
	q, err := a.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		return nil, core.ErrNotFound.Wrap(err)
	}
	return q, nil
}

// bindError maps binder failures to HTTP errors.
func bindError(err error) error {
	switch {
	case errors.Is(err, binder.ErrMissingContentType), errors.Is(err, binder.ErrUnsupportedMediaType):
		return core.ErrUnsupportedMediaType.Wrap(err)
	case errors.Is(err, binder.ErrBodyTooLarge):
		return core.ErrRequestEntityTooLarge.Wrap(err)
	default:
		return core.ErrBadRequest.Wrap(err)
	}
}
