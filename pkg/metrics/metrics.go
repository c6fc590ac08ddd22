// Package metrics provides the Prometheus metrics exported by the
// rekognition server.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Metrics contains all Prometheus metrics for detection, analysis, the
// result cache and authentication.
//
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	DetectionRequests *prometheus.CounterVec
	DetectionDuration prometheus.Histogram
	FileResults       *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	AuthAttempts      *prometheus.CounterVec
	registry          *prometheus.Registry
}

// New creates the metrics and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.DetectionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rekognition_detection_requests_total",
			Help: "Total number of label detection requests by outcome",
		},
		[]string{"outcome"},
	)

	m.DetectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rekognition_detection_duration_seconds",
		Help:    "Duration of label detection requests in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	m.FileResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rekognition_file_results_total",
			Help: "Total number of processed upload files by status",
		},
		[]string{"status"},
	)

	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rekognition_result_cache_lookups_total",
			Help: "Total number of result cache lookups by result",
		},
		[]string{"result"},
	)

	m.AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rekognition_auth_attempts_total",
			Help: "Total number of register and login attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)
}

// ObserveDetection records one detection request.
func (m *Metrics) ObserveDetection(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DetectionRequests.WithLabelValues(outcome).Inc()
	m.DetectionDuration.Observe(duration.Seconds())
}

// IncFileResult counts one processed file.
func (m *Metrics) IncFileResult(status string) {
	if m == nil {
		return
	}
	m.FileResults.WithLabelValues(status).Inc()
}

// IncCacheLookup counts a result cache hit or miss.
func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncAuthAttempt counts a register or login attempt.
func (m *Metrics) IncAuthAttempt(operation string, success bool) {
	if m == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.DetectionRequests.Describe(ch)
	ch <- m.DetectionDuration.Desc()
	m.FileResults.Describe(ch)
	m.CacheLookups.Describe(ch)
	m.AuthAttempts.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.DetectionRequests.Collect(ch)
	ch <- m.DetectionDuration
	m.FileResults.Collect(ch)
	m.CacheLookups.Collect(ch)
	m.AuthAttempts.Collect(ch)
}
