package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeReleased  = "released"
)

// Metrics holds Prometheus collectors for queues. A nil *Metrics records nothing.
type Metrics struct {
	enqueued  *prometheus.CounterVec
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
	throttled *prometheus.CounterVec
}

// NewMetrics registers the queue collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobkit",
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs enqueued by clients.",
		}, []string{"queue"}),
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobkit",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Job executions by outcome.",
		}, []string{"queue", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobkit",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Job body execution time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"queue"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobkit",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Job bodies currently executing.",
		}, []string{"queue"}),
		throttled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobkit",
			Subsystem: "queue",
			Name:      "claims_throttled_total",
			Help:      "Poll cycles cut short by a limiter.",
		}, []string{"queue"}),
	}
}

func (m *Metrics) jobEnqueued(queue string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(queue).Inc()
}

func (m *Metrics) jobStarted(queue string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(queue).Inc()
}

func (m *Metrics) jobSettled(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(queue).Dec()
	m.processed.WithLabelValues(queue, outcome).Inc()
	m.duration.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *Metrics) claimThrottled(queue string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(queue).Inc()
}
