// Package metrics provides Prometheus metrics for the hit writer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the hit writer.
type Metrics struct {
	// Event metrics
	EventsWritten   *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	HitsWritten     *prometheus.CounterVec
	LastEventNumber *prometheus.GaugeVec

	// Timing metrics
	BuildDuration  *prometheus.HistogramVec
	AppendDuration *prometheus.HistogramVec

	// Size metrics
	EventHits *prometheus.HistogramVec

	// Pipeline metrics
	WorkerQueueDepth prometheus.Gauge
	SequencerPending prometheus.Gauge

	// Error metrics
	UnresolvedDetectors *prometheus.CounterVec
	SourceErrors        *prometheus.CounterVec
	ExportErrors        *prometheus.CounterVec
	PublishErrors       *prometheus.CounterVec

	// Throughput
	EventsPerSecond prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // e.g. ":9090"
}

var defaultMetrics *Metrics

// Init registers all metrics under the given namespace. Call once at
// startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hitwriter"
	}

	m := &Metrics{
		EventsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_written_total",
				Help:      "Total number of events appended to the run file",
			},
			[]string{"detector_name"},
		),
		EventsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_failed_total",
				Help:      "Total number of events that failed processing",
			},
			[]string{"detector_name", "stage"},
		),
		HitsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hits_written_total",
				Help:      "Total number of pixel hits written per collection",
			},
			[]string{"detector_name", "collection"},
		),
		LastEventNumber: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_event_number",
				Help:      "Last appended event number",
			},
			[]string{"detector_name"},
		),
		BuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_build_duration_seconds",
				Help:      "Time to build one event record",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
			},
			[]string{"detector_name"},
		),
		AppendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_append_duration_seconds",
				Help:      "Time to append one event record to the run file",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
			},
			[]string{"detector_name"},
		),
		EventHits: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_hits",
				Help:      "Number of pixel hits per event",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1 to ~8k
			},
			[]string{"detector_name"},
		),
		WorkerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current depth of the event worker queue",
			},
		),
		SequencerPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequencer_pending",
				Help:      "Built records waiting for their turn to append",
			},
		),
		UnresolvedDetectors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unresolved_detectors_total",
				Help:      "Hits referencing detectors missing from the assignment map",
			},
			[]string{"detector_name"},
		),
		SourceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Errors reading or decoding event captures",
			},
			[]string{"detector_name", "mode"},
		),
		ExportErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_errors_total",
				Help:      "Errors writing the geometry file",
			},
			[]string{"detector_name"},
		),
		PublishErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Errors publishing run artifacts to storage",
			},
			[]string{"detector_name", "backend"},
		),
		EventsPerSecond: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "events_per_second",
				Help:      "Current event processing rate",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, nil before Init.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer serves /metrics and /health. Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncEventsWritten increments the events written counter.
func (m *Metrics) IncEventsWritten(detectorName string) {
	m.EventsWritten.WithLabelValues(detectorName).Inc()
}

// IncEventsFailed increments the failed events counter for a stage.
func (m *Metrics) IncEventsFailed(detectorName, stage string) {
	m.EventsFailed.WithLabelValues(detectorName, stage).Inc()
}

// AddHitsWritten adds to the per-collection hit counter.
func (m *Metrics) AddHitsWritten(detectorName, collection string, count float64) {
	m.HitsWritten.WithLabelValues(detectorName, collection).Add(count)
}

// SetLastEventNumber records the last appended event number.
func (m *Metrics) SetLastEventNumber(detectorName string, event float64) {
	m.LastEventNumber.WithLabelValues(detectorName).Set(event)
}

// ObserveBuildDuration records the time spent building a record.
func (m *Metrics) ObserveBuildDuration(detectorName string, seconds float64) {
	m.BuildDuration.WithLabelValues(detectorName).Observe(seconds)
}

// ObserveAppendDuration records the time spent appending a record.
func (m *Metrics) ObserveAppendDuration(detectorName string, seconds float64) {
	m.AppendDuration.WithLabelValues(detectorName).Observe(seconds)
}

// ObserveEventHits records the hit count of one event.
func (m *Metrics) ObserveEventHits(detectorName string, hits float64) {
	m.EventHits.WithLabelValues(detectorName).Observe(hits)
}

// IncUnresolvedDetectors counts a hit for an unassigned detector.
func (m *Metrics) IncUnresolvedDetectors(detectorName string) {
	m.UnresolvedDetectors.WithLabelValues(detectorName).Inc()
}

// IncSourceErrors counts a capture read or decode failure.
func (m *Metrics) IncSourceErrors(detectorName, mode string) {
	m.SourceErrors.WithLabelValues(detectorName, mode).Inc()
}

// IncExportErrors counts a geometry export failure.
func (m *Metrics) IncExportErrors(detectorName string) {
	m.ExportErrors.WithLabelValues(detectorName).Inc()
}

// IncPublishErrors counts a storage publish failure.
func (m *Metrics) IncPublishErrors(detectorName, backend string) {
	m.PublishErrors.WithLabelValues(detectorName, backend).Inc()
}

// SetEventsPerSecond sets the current processing rate.
func (m *Metrics) SetEventsPerSecond(rate float64) {
	m.EventsPerSecond.Set(rate)
}
