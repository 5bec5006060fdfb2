package admin

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/uplink/internal/job"
)

// Metrics exports job execution counters in Prometheus format. It
// implements scheduler.Recorder.
type Metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	uploaded prometheus.Counter
	errors   prometheus.Counter
}

// NewMetrics creates the collector set on a private registry, so the
// admin endpoint only exposes worker metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uplink_job_runs_total",
			Help: "Job executions by job id and outcome.",
		}, []string{"job", "outcome"}),
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uplink_sessions_uploaded_total",
			Help: "Session transcripts uploaded and archived.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uplink_job_errors_total",
			Help: "Per-item errors reported by job runs.",
		}),
	}
	m.registry.MustRegister(m.runs, m.uploaded, m.errors)
	return m
}

// RecordRun implements scheduler.Recorder.
func (m *Metrics) RecordRun(res job.Result) {
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	m.runs.WithLabelValues(res.JobID, outcome).Inc()
	m.uploaded.Add(float64(res.ItemsProcessed))
	m.errors.Add(float64(len(res.Errors)))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
