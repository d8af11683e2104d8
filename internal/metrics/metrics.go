// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the scheduler's collectors. A nil *Metrics is valid
// and turns all recording into no-ops, so tests can skip registration.
type Metrics struct {
	JobsEnqueued    prometheus.Counter
	JobsFinished    *prometheus.CounterVec
	JobsRunning     prometheus.Gauge
	ResourcesHeld   prometheus.Gauge
	AdmissionDenied prometheus.Counter
	JobDuration     prometheus.Histogram
}

// New registers all collectors with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "s7dump_jobs_enqueued_total",
			Help: "Jobs accepted into the scheduler queue.",
		}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "s7dump_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by state.",
		}, []string{"state"}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "s7dump_jobs_running",
			Help: "Jobs currently holding resources and executing.",
		}),
		ResourcesHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "s7dump_resources_held",
			Help: "Resource keys currently reserved by running jobs.",
		}),
		AdmissionDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "s7dump_admission_denied_total",
			Help: "Dispatch attempts blocked on a busy resource.",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "s7dump_job_duration_seconds",
			Help:    "Wall time from admission to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

// ObserveEnqueued is nil-safe.
func (m *Metrics) ObserveEnqueued() {
	if m != nil {
		m.JobsEnqueued.Inc()
	}
}

// ObserveAdmissionDenied is nil-safe.
func (m *Metrics) ObserveAdmissionDenied() {
	if m != nil {
		m.AdmissionDenied.Inc()
	}
}

// ObserveStarted is nil-safe.
func (m *Metrics) ObserveStarted(resources int) {
	if m != nil {
		m.JobsRunning.Inc()
		m.ResourcesHeld.Add(float64(resources))
	}
}

// ObserveFinished is nil-safe.
func (m *Metrics) ObserveFinished(state string, resources int, seconds float64) {
	if m != nil {
		m.JobsFinished.WithLabelValues(state).Inc()
		m.JobsRunning.Dec()
		m.ResourcesHeld.Sub(float64(resources))
		m.JobDuration.Observe(seconds)
	}
}

// ObserveCanceledQueued is nil-safe; a queued job canceled before
// admission never held resources.
func (m *Metrics) ObserveCanceledQueued(state string) {
	if m != nil {
		m.JobsFinished.WithLabelValues(state).Inc()
	}
}
