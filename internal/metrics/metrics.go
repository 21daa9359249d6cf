// Package metrics exposes Prometheus metrics for the ingest pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "sitewatch"
	subsystem = "ingest"
)

// Private registry so the endpoint only carries our metrics.
var registry = prometheus.NewRegistry()

var (
	uploadsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "uploads_total",
		Help:      "Uploads by reconciliation outcome.",
	}, []string{"outcome"})

	uploadFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "upload_failures_total",
		Help:      "Failed uploads by error kind.",
	}, []string{"kind"})

	ingestDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "duration_seconds",
		Help:      "End-to-end ingest duration.",
		Buckets:   prometheus.DefBuckets,
	})

	classifierCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "calls_total",
		Help:      "Remote classifier invocations.",
	})

	classifierFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "failures_total",
		Help:      "Classifier calls that degraded to unchanged.",
	})

	classifierLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "latency_seconds",
		Help:      "Remote classifier call latency.",
		Buckets:   prometheus.DefBuckets,
	})

	lockWait = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the per-camera gate.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
	})

	trackedLocations = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tracked_locations",
		Help:      "Capture records currently tracked.",
	})
)

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func RecordUpload(outcome string) {
	uploadsTotal.WithLabelValues(outcome).Inc()
}

func RecordUploadFailure(kind string) {
	uploadFailures.WithLabelValues(kind).Inc()
}

func ObserveIngestDuration(seconds float64) {
	ingestDuration.Observe(seconds)
}

func RecordClassifierCall(seconds float64) {
	classifierCalls.Inc()
	classifierLatency.Observe(seconds)
}

func RecordClassifierFailure() {
	classifierFailures.Inc()
}

func ObserveLockWait(seconds float64) {
	lockWait.Observe(seconds)
}

func SetTrackedLocations(n int) {
	trackedLocations.Set(float64(n))
}
