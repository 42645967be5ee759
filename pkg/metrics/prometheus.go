// Package metrics provides Prometheus metrics for the rollcall attendance service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultValidation   = "validation"
	ResultUnauthorized = "unauthorized"
	ResultNotFound     = "not_found"
	ResultConflict     = "conflict"
	ResultStorage      = "storage"
)

// Manager manages all Prometheus metrics for the rollcall service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	metricPrefix     string
	registry         prometheus.Registerer

	// Ledger Metrics - roster submissions and their outcome
	submissions      *prometheus.CounterVec
	recordsWritten   prometheus.Counter
	recordsReplaced  prometheus.Counter
	submitLatency    prometheus.Histogram
	facultyProvision prometheus.Counter

	// Read Metrics - stats and history
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// Timetable Metrics
	timetableEntries   prometheus.Gauge
	timetableAnomalies *prometheus.CounterVec

	// Reference Data Metrics
	studentsTotal prometheus.Gauge
	facultyTotal  prometheus.Gauge

	// Snapshot Metrics - in-memory store publication timings
	repositorySnapshotRebuildDuration prometheus.Histogram
	repositorySnapshotLastUnix        prometheus.Gauge
	repositorySnapshotCount           prometheus.Counter
	repositorySnapshotLastDurationMs  prometheus.Gauge

	// Repository Metrics
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rollcall",
		subsystem:        "attendance",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string { return m.metricPrefix + n }

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: m.name(name), Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(
		m.counterOpts("submissions_total", "Roster submissions by result"),
		[]string{"result"},
	)
	m.recordsWritten = auto.NewCounter(m.counterOpts("records_written_total", "Attendance records inserted by submissions"))
	m.recordsReplaced = auto.NewCounter(m.counterOpts("records_replaced_total", "Attendance records deleted by resubmissions"))
	m.submitLatency = auto.NewHistogram(m.histogramOpts("submit_latency_milliseconds", "End-to-end roster submission latency in milliseconds", m.histogramBuckets))
	m.facultyProvision = auto.NewCounter(m.counterOpts("faculty_upserts_total", "Faculty rows provisioned on first submission"))

	m.queries = auto.NewCounterVec(
		m.counterOpts("queries_total", "Read queries by kind (stats, history, session)"),
		[]string{"kind"},
	)
	m.queryLatency = auto.NewHistogramVec(
		m.histogramOpts("query_latency_milliseconds", "Read query latency in milliseconds by kind", m.histogramBuckets),
		[]string{"kind"},
	)

	m.timetableEntries = auto.NewGauge(m.gaugeOpts("timetable_entries", "Number of configured timetable entries"))
	m.timetableAnomalies = auto.NewCounterVec(
		m.counterOpts("timetable_anomalies_total", "Instants matched by more than one timetable entry"),
		[]string{"section"},
	)

	m.studentsTotal = auto.NewGauge(m.gaugeOpts("students_total", "Students on the roster"))
	m.facultyTotal = auto.NewGauge(m.gaugeOpts("faculty_total", "Provisioned faculty rows"))

	m.repositorySnapshotRebuildDuration = auto.NewHistogram(m.histogramOpts(
		"repository_snapshot_rebuild_duration_milliseconds",
		"Time to build and publish a store snapshot in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100},
	))
	m.repositorySnapshotLastUnix = auto.NewGauge(m.gaugeOpts("repository_snapshot_last_unix", "Unix time of the last published snapshot"))
	m.repositorySnapshotCount = auto.NewCounter(m.counterOpts("repository_snapshots_total", "Snapshots published"))
	m.repositorySnapshotLastDurationMs = auto.NewGauge(m.gaugeOpts("repository_snapshot_last_duration_milliseconds", "Duration of the last snapshot build"))

	m.repositoryRecordsTotal = auto.NewGauge(m.gaugeOpts("repository_records_total", "Attendance records held by the store"))
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Store write latency in milliseconds", m.histogramBuckets))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Store read latency in milliseconds", m.histogramBuckets))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by HTTP endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that failed in milliseconds", m.histogramBuckets),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// Enabled reports whether the global manager records observations.
func Enabled() bool { return globalManager.enabled }

// Ledger Metrics Functions.

// RecordSubmission counts one roster submission by result.
func RecordSubmission(result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.submissions.WithLabelValues(result).Inc()
}

// RecordRecordsWritten adds n inserted records.
func RecordRecordsWritten(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.recordsWritten.Add(float64(n))
}

// RecordRecordsReplaced adds n records removed by a resubmission.
func RecordRecordsReplaced(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.recordsReplaced.Add(float64(n))
}

// RecordSubmitLatency records submission latency in milliseconds.
func RecordSubmitLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordFacultyUpsert counts one newly provisioned faculty row.
func RecordFacultyUpsert() {
	if !globalManager.enabled {
		return
	}
	globalManager.facultyProvision.Inc()
}

// RecordQuery counts a read of the given kind and its latency.
func RecordQuery(kind string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queries.WithLabelValues(kind).Inc()
	globalManager.queryLatency.WithLabelValues(kind).Observe(latencyMs)
}

// Timetable Metrics Functions.

// UpdateTimetableEntries sets the number of configured entries.
func UpdateTimetableEntries(count int) {
	globalManager.timetableEntries.Set(float64(count))
}

// RecordTimetableAnomaly counts an ambiguous current-session lookup.
func RecordTimetableAnomaly(section string) {
	if !globalManager.enabled {
		return
	}
	globalManager.timetableAnomalies.WithLabelValues(section).Inc()
}

// Reference Data Metrics Functions.

// UpdateStudentsTotal sets the roster size.
func UpdateStudentsTotal(count int) {
	globalManager.studentsTotal.Set(float64(count))
}

// UpdateFacultyTotal sets the number of provisioned faculty.
func UpdateFacultyTotal(count int) {
	globalManager.facultyTotal.Set(float64(count))
}

// Snapshot Metrics Functions.

// RecordRepositorySnapshotRebuildDuration records a snapshot build and
// stamps the last-published gauges.
func RecordRepositorySnapshotRebuildDuration(durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositorySnapshotRebuildDuration.Observe(durationMs)
	globalManager.repositorySnapshotLastDurationMs.Set(durationMs)
	globalManager.repositorySnapshotLastUnix.Set(float64(time.Now().Unix()))
}

// IncrementRepositorySnapshotCount counts a published snapshot.
func IncrementRepositorySnapshotCount() {
	if !globalManager.enabled {
		return
	}
	globalManager.repositorySnapshotCount.Inc()
}

// Repository Metrics Functions.

// UpdateRepositoryRecordsTotal sets the number of stored records.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
