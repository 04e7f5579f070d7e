// Package metrics exports run counters in the Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agenthands/scigraph/internal/core/stats"
)

const namespace = "scigraph"

type Recorder struct {
	records      *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepErrors   *prometheus.CounterVec
	running      prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// NewRecorder registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests to avoid the global registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Ingestion counters by name, e.g. nodesUpserted or edgesMissingEndpoint.",
		}, []string{"counter"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of each pipeline step.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"step"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_errors_total",
			Help:      "Pipeline steps that returned an error.",
		}, []string{"step"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while an ingestion run is active.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error.",
		}),
	}
	reg.MustRegister(r.records, r.stepDuration, r.stepErrors, r.running, r.lastSuccess)
	return r
}

// Observe adds every counter of res. Qualified counters such as
// "nodesUpserted.Dataset" are exported under their full name.
func (r *Recorder) Observe(res stats.RunStats) {
	for _, k := range res.Keys() {
		if v := res.Get(k); v > 0 {
			r.records.WithLabelValues(k).Add(float64(v))
		}
	}
}

// ObserveStep matches the pipeline's step hook.
func (r *Recorder) ObserveStep(step string, res stats.RunStats, err error, elapsed time.Duration) {
	r.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		r.stepErrors.WithLabelValues(step).Inc()
	}
	r.Observe(res)
}

func (r *Recorder) RunStarted() {
	r.running.Set(1)
}

func (r *Recorder) RunFinished(err error) {
	r.running.Set(0)
	if err == nil {
		r.lastSuccess.SetToCurrentTime()
	}
}
