package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// Probe checks one dependency.
type Probe func(context.Context) error

// HealthCheckHandler answers 200 READY when every probe passes and 503
// NOT_READY otherwise. Without probes it answers 200 ALIVE.
func HealthCheckHandler(log *slog.Logger, probes map[string]Probe) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", slog.String("probe", name), logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
