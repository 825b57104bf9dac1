// Package metrics provides Prometheus metrics for the hiscore leaderboard service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the hiscore service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Leaderboard metrics
	submissions      *prometheus.CounterVec
	mergesChanged    *prometheus.CounterVec
	mergesDiscarded  *prometheus.CounterVec
	listEntries      *prometheus.GaugeVec
	submitDuplicates prometheus.Counter

	// Synchronization metrics
	syncPasses       *prometheus.CounterVec
	syncPassDuration prometheus.Histogram
	recordsSent      prometheus.Counter
	recordsReceived  prometheus.Counter
	malformedRecords *prometheus.CounterVec
	packetsSent      prometheus.Counter
	packetsReceived  prometheus.Counter

	// Persistence metrics
	saves        prometheus.Counter
	saveFailures prometheus.Counter
	saveLatency  prometheus.Histogram
	saveBytes    prometheus.Gauge
	lastSaveUnix prometheus.Gauge

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hiscore",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
			Buckets: m.histogramBuckets,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		}, labels)
	}

	m.submissions = counterVec("submissions_total", "Local score submissions by list", "list")
	m.mergesChanged = counterVec("merges_changed_total", "Merges that altered a list, by origin (local, sync)", "origin")
	m.mergesDiscarded = counterVec("merges_discarded_total", "Merges that left a list unchanged, by origin", "origin")
	m.listEntries = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("list_entries"),
		Help: "Entries currently held per list", ConstLabels: m.customLabels,
	}, []string{"list"})
	m.submitDuplicates = counter("submissions_duplicate_total", "Submissions dropped by the deduper")

	m.syncPasses = counterVec("sync_passes_total", "Synchronization passes by result", "result")
	m.syncPassDuration = histogram("sync_pass_duration_milliseconds", "Synchronization pass duration in milliseconds")
	m.recordsSent = counter("sync_records_sent_total", "Entry records written to peers")
	m.recordsReceived = counter("sync_records_received_total", "Entry records read from peers")
	m.malformedRecords = counterVec("sync_malformed_records_total", "Inbound records dropped as malformed", "reason")
	m.packetsSent = counter("sync_packets_sent_total", "Packets handed to the transport")
	m.packetsReceived = counter("sync_packets_received_total", "Packets received from the transport")

	m.saves = counter("persist_saves_total", "Successful snapshot saves")
	m.saveFailures = counter("persist_failures_total", "Failed snapshot saves")
	m.saveLatency = histogram("persist_latency_milliseconds", "Snapshot save latency in milliseconds")
	m.saveBytes = gauge("persist_last_bytes", "Size of the last snapshot written")
	m.lastSaveUnix = gauge("persist_last_unix", "Unix timestamp of the last successful save")

	m.queueSize = gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = gauge("queue_capacity", "Maximum submission queue capacity")
	m.queueEnqueueTotal = counter("queue_enqueue_total", "Total number of submissions enqueued")
	m.queueDequeueTotal = counter("queue_dequeue_total", "Total number of submissions dequeued")
	m.queueEnqueueErrors = counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	m.workerCount = gauge("worker_count", "Number of submission workers")
	m.workerProcessingLatency = histogram("worker_processing_latency_milliseconds", "Submission processing latency in milliseconds")
	m.workerErrors = counter("worker_errors_total", "Submissions that failed to apply")

	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
}

// Leaderboard metrics.

// RecordSubmission counts a local submission against a list.
func RecordSubmission(list int) {
	globalManager.submissions.WithLabelValues(strconv.Itoa(list)).Inc()
}

// RecordMerge counts a merge outcome; origin is "local" or "sync".
func RecordMerge(origin string, changed bool) {
	if changed {
		globalManager.mergesChanged.WithLabelValues(origin).Inc()
		return
	}
	globalManager.mergesDiscarded.WithLabelValues(origin).Inc()
}

// UpdateListEntries sets the entry count gauge of a list.
func UpdateListEntries(list, count int) {
	globalManager.listEntries.WithLabelValues(strconv.Itoa(list)).Set(float64(count))
}

// RecordSubmissionDuplicate counts a submission dropped by the deduper.
func RecordSubmissionDuplicate() {
	globalManager.submitDuplicates.Inc()
}

// Synchronization metrics.

// RecordSyncPass counts a finished pass and observes its duration.
func RecordSyncPass(result string, duration time.Duration) {
	globalManager.syncPasses.WithLabelValues(result).Inc()
	globalManager.syncPassDuration.Observe(float64(duration.Milliseconds()))
}

// RecordRecordSent counts an outbound entry record.
func RecordRecordSent() {
	globalManager.recordsSent.Inc()
}

// RecordRecordReceived counts an inbound entry record.
func RecordRecordReceived() {
	globalManager.recordsReceived.Inc()
}

// RecordMalformedRecord counts an inbound record dropped for reason.
func RecordMalformedRecord(reason string) {
	globalManager.malformedRecords.WithLabelValues(reason).Inc()
}

// RecordPacketSent counts a packet handed to the transport.
func RecordPacketSent() {
	globalManager.packetsSent.Inc()
}

// RecordPacketReceived counts a packet read from the transport.
func RecordPacketReceived() {
	globalManager.packetsReceived.Inc()
}

// Persistence metrics.

// RecordSave records a successful snapshot write of size bytes.
func RecordSave(latency time.Duration, size int64) {
	globalManager.saves.Inc()
	globalManager.saveLatency.Observe(float64(latency.Milliseconds()))
	globalManager.saveBytes.Set(float64(size))
	globalManager.lastSaveUnix.Set(float64(time.Now().Unix()))
}

// RecordSaveFailure counts a failed snapshot write.
func RecordSaveFailure() {
	globalManager.saveFailures.Inc()
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global returns the process-wide manager, mainly so tests can read collectors.
func Global() *Manager {
	return globalManager
}
