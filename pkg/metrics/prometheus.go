// Package metrics provides Prometheus metrics for the scouting pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Run Orchestrator
	runsStarted          prometheus.Counter
	runsFinished         *prometheus.CounterVec
	connectorExecutions  *prometheus.CounterVec
	connectorRecords     *prometheus.CounterVec
	connectorRejected    *prometheus.CounterVec
	connectorDuration    *prometheus.HistogramVec
	connectorTimeouts    *prometheus.CounterVec
	duplicateDeliveries  *prometheus.CounterVec
	runsActive           prometheus.Gauge

	// Deduplication Engine
	dedupeDecisions  *prometheus.CounterVec
	dedupeScore      prometheus.Histogram
	dedupeBlockSize  prometheus.Histogram
	dedupeLatency    prometheus.Histogram
	dedupeReopened   prometheus.Counter
	dedupeUnresolved *prometheus.CounterVec

	// Scheduler and ingestion logs
	scheduleTriggers *prometheus.CounterVec
	ingestionLogs    *prometheus.CounterVec

	// Review Inbox
	inboxPending   prometheus.Gauge
	inboxDecisions *prometheus.CounterVec
	inboxRejected  *prometheus.CounterVec

	// Talent Directory
	directoryProfiles  prometheus.Gauge
	directoryMerges    prometheus.Counter
	directoryCreates   prometheus.Counter
	directoryConflicts prometheus.Counter
	directoryRetries   prometheus.Counter
	directoryLatency   *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       *prometheus.CounterVec
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency *prometheus.HistogramVec
	workerErrors            *prometheus.CounterVec
	workerRetries           *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "scout",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	scoreBuckets := prometheus.LinearBuckets(0, 0.1, 11)
	blockBuckets := []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}

	m.runsStarted = m.counter("runs_started_total", "Total number of runs created")
	m.runsFinished = m.counterVec("runs_finished_total", "Total number of runs that reached a terminal state", "state")
	m.runsActive = m.gauge("runs_active", "Runs not yet in a terminal state")
	m.connectorExecutions = m.counterVec("connector_executions_total", "Connector executions by terminal state", "connector", "state")
	m.connectorRecords = m.counterVec("connector_records_total", "Candidate records ingested per connector", "connector")
	m.connectorRejected = m.counterVec("connector_rejected_total", "Raw records rejected during normalization", "connector")
	m.connectorDuration = m.histogramVec("connector_execution_milliseconds", "Connector execution duration in milliseconds", m.histogramBuckets, "connector")
	m.connectorTimeouts = m.counterVec("connector_timeouts_total", "Connector executions failed by timeout", "connector")
	m.duplicateDeliveries = m.counterVec("duplicate_deliveries_total", "Duplicate work deliveries absorbed as no-ops", "kind")

	m.dedupeDecisions = m.counterVec("dedupe_decisions_total", "Dedupe candidates emitted by outcome", "outcome")
	m.dedupeScore = m.histogram("dedupe_best_score", "Best similarity score per resolved record", scoreBuckets)
	m.dedupeBlockSize = m.histogram("dedupe_block_size", "Number of profiles compared per resolved record", blockBuckets)
	m.dedupeLatency = m.histogram("dedupe_resolve_milliseconds", "Resolve latency in milliseconds", m.histogramBuckets)
	m.dedupeReopened = m.counter("dedupe_reopened_total", "Operator reversals that produced a new dedupe candidate")
	m.dedupeUnresolved = m.counterVec("dedupe_unresolved_total", "Records whose resolution failed for good", "connector")

	m.scheduleTriggers = m.counterVec("schedule_triggers_total", "Runs started by a due connector schedule", "connector")
	m.ingestionLogs = m.counterVec("ingestion_logs_total", "Ingestion log entries written", "connector")

	m.inboxPending = m.gauge("inbox_pending", "Inbox items awaiting a reviewer")
	m.inboxDecisions = m.counterVec("inbox_decisions_total", "Reviewer decisions by outcome", "outcome")
	m.inboxRejected = m.counterVec("inbox_rejected_operations_total", "Inbox operations rejected by reason", "reason")

	m.directoryProfiles = m.gauge("directory_profiles", "Talent profiles in the directory")
	m.directoryMerges = m.counter("directory_merges_total", "Provenance links attached to existing profiles")
	m.directoryCreates = m.counter("directory_creates_total", "Talent profiles created")
	m.directoryConflicts = m.counter("directory_conflicts_total", "Optimistic version conflicts on profile writes")
	m.directoryRetries = m.counter("directory_retries_total", "Retried profile writes")
	m.directoryLatency = m.histogramVec("directory_operation_milliseconds", "Directory operation latency in milliseconds", m.histogramBuckets, "operation")

	m.queueSize = m.gauge("queue_size", "Current size of the work queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the work queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counterVec("queue_enqueue_total", "Messages enqueued by kind", "kind")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Messages dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Messages rejected by the queue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", m.histogramBuckets)

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running workers")
	m.workerProcessingLatency = m.histogramVec("worker_processing_latency_milliseconds", "Message handling latency in milliseconds", m.histogramBuckets, "kind")
	m.workerErrors = m.counterVec("worker_errors_total", "Message handling failures by kind", "kind")
	m.workerRetries = m.counterVec("worker_retries_total", "Messages re-enqueued after a failure", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
}

// Run Orchestrator.

// RecordRunStarted increments the runs started counter.
func RecordRunStarted() {
	globalManager.runsStarted.Inc()
	globalManager.runsActive.Inc()
}

// RecordRunFinished records a run reaching a terminal state.
func RecordRunFinished(state string) {
	globalManager.runsFinished.WithLabelValues(state).Inc()
	globalManager.runsActive.Dec()
}

// RecordConnectorExecution records a terminal connector execution.
func RecordConnectorExecution(connector, state string, duration time.Duration) {
	globalManager.connectorExecutions.WithLabelValues(connector, state).Inc()
	globalManager.connectorDuration.WithLabelValues(connector).Observe(float64(duration.Milliseconds()))
}

// RecordConnectorRecords adds ingested and rejected record counts for a connector.
func RecordConnectorRecords(connector string, ingested, rejected int) {
	globalManager.connectorRecords.WithLabelValues(connector).Add(float64(ingested))
	globalManager.connectorRejected.WithLabelValues(connector).Add(float64(rejected))
}

// RecordConnectorTimeout increments the timeout counter for a connector.
func RecordConnectorTimeout(connector string) {
	globalManager.connectorTimeouts.WithLabelValues(connector).Inc()
}

// RecordDuplicateDelivery counts a duplicate delivery absorbed as a no-op.
func RecordDuplicateDelivery(kind string) {
	globalManager.duplicateDeliveries.WithLabelValues(kind).Inc()
}

// Deduplication Engine.

// RecordDedupeDecision records the outcome of a resolve call.
func RecordDedupeDecision(outcome string, bestScore float64, blockSize int, latency time.Duration) {
	globalManager.dedupeDecisions.WithLabelValues(outcome).Inc()
	globalManager.dedupeScore.Observe(bestScore)
	globalManager.dedupeBlockSize.Observe(float64(blockSize))
	globalManager.dedupeLatency.Observe(float64(latency.Milliseconds()))
}

// RecordDedupeReopened increments the reversal counter.
func RecordDedupeReopened() {
	globalManager.dedupeReopened.Inc()
}

// RecordDedupeUnresolved counts a record that will not be resolved.
func RecordDedupeUnresolved(connector string) {
	globalManager.dedupeUnresolved.WithLabelValues(connector).Inc()
}

// RecordScheduleTrigger counts a scheduled execution of a connector.
func RecordScheduleTrigger(connector string) {
	globalManager.scheduleTriggers.WithLabelValues(connector).Inc()
}

// RecordIngestionLog counts an ingestion log entry.
func RecordIngestionLog(connector string) {
	globalManager.ingestionLogs.WithLabelValues(connector).Inc()
}

// Review Inbox.

// UpdateInboxPending sets the pending inbox gauge.
func UpdateInboxPending(count int) {
	globalManager.inboxPending.Set(float64(count))
}

// RecordInboxDecision records a reviewer decision.
func RecordInboxDecision(outcome string) {
	globalManager.inboxDecisions.WithLabelValues(outcome).Inc()
}

// RecordInboxRejected records an inbox operation refused by the state machine.
func RecordInboxRejected(reason string) {
	globalManager.inboxRejected.WithLabelValues(reason).Inc()
}

// Talent Directory.

// UpdateDirectoryProfiles sets the number of profiles in the directory.
func UpdateDirectoryProfiles(count int) {
	globalManager.directoryProfiles.Set(float64(count))
}

// RecordDirectoryMerge increments the merge counter.
func RecordDirectoryMerge() {
	globalManager.directoryMerges.Inc()
}

// RecordDirectoryCreate increments the create counter.
func RecordDirectoryCreate() {
	globalManager.directoryCreates.Inc()
}

// RecordDirectoryConflict increments the version conflict counter.
func RecordDirectoryConflict() {
	globalManager.directoryConflicts.Inc()
}

// RecordDirectoryRetry increments the retry counter.
func RecordDirectoryRetry() {
	globalManager.directoryRetries.Inc()
}

// RecordDirectoryLatency records the latency of a directory operation.
func RecordDirectoryLatency(operation string, latency time.Duration) {
	globalManager.directoryLatency.WithLabelValues(operation).Observe(float64(latency.Microseconds()) / 1000)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter for a message kind.
func RecordQueueEnqueue(kind string) {
	globalManager.queueEnqueueRate.WithLabelValues(kind).Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records message handling latency.
func RecordWorkerProcessingLatency(kind string, latency time.Duration) {
	globalManager.workerProcessingLatency.WithLabelValues(kind).Observe(float64(latency.Milliseconds()))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError(kind string) {
	globalManager.workerErrors.WithLabelValues(kind).Inc()
}

// RecordWorkerRetry increments the retry counter.
func RecordWorkerRetry(kind string) {
	globalManager.workerRetries.WithLabelValues(kind).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error for an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
