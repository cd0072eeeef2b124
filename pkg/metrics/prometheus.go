// Package metrics provides Prometheus metrics for the Esplanada ratings service.
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

// Manager manages all Prometheus metrics for the ratings service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Core Business Metrics - submission pipeline outcomes
	submissionsAccepted prometheus.Counter
	submissionsUpdated  prometheus.Counter
	submissionsRejected *prometheus.CounterVec

	// Integrity Metrics - guard components
	rateLimitDenials   *prometheus.CounterVec
	duplicateDenials   prometheus.Counter
	suspiciousFlags    *prometheus.CounterVec
	identityFallbacks  prometheus.Counter
	identitiesIssued   prometheus.Counter
	checkTimeouts      *prometheus.CounterVec

	// Aggregation Metrics
	aggregationLatency prometheus.Histogram
	statisticsRebuilds prometheus.Counter
	trackedSubjects    prometheus.Gauge

	// Repository Metrics
	repositoryWriteLatency prometheus.Histogram
	repositoryReadLatency  prometheus.Histogram
	repositoryErrors       prometheus.Counter
	recordsTotal           prometheus.Gauge

	// Broadcast Metrics
	broadcastQueueSize  prometheus.Gauge
	broadcastPublished  prometheus.Counter
	broadcastDropped    *prometheus.CounterVec
	broadcastSubscribers prometheus.Gauge

	// Security Metrics
	securityEvents prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

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
		namespace:        "esplanada",
		subsystem:        "ratings",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Core Business Metrics - submission outcomes drive everything else
	m.submissionsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_accepted_total",
		Help:      "Total number of rating submissions accepted as new records",
	})

	m.submissionsUpdated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_updated_total",
		Help:      "Total number of accepted update-in-place submissions",
	})

	m.submissionsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "submissions_rejected_total",
			Help:      "Total number of rejected submissions by rejection kind",
		},
		[]string{"kind"},
	)

	// Integrity Metrics - per-guard denial tracking
	m.rateLimitDenials = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_limit_denials_total",
			Help:      "Total number of rate limiter denials by scope (identity or global)",
		},
		[]string{"scope"},
	)

	m.duplicateDenials = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_denials_total",
		Help:      "Total number of submissions denied inside the update cooldown",
	})

	m.suspiciousFlags = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "suspicious_flags_total",
			Help:      "Total number of submissions flagged by suspicion heuristic",
		},
		[]string{"reason"},
	)

	m.identityFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "identity_fallbacks_total",
		Help:      "Total number of low-confidence identities issued from the minimal signal set",
	})

	m.identitiesIssued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "identities_issued_total",
		Help:      "Total number of identity digests generated",
	})

	m.checkTimeouts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "check_timeouts_total",
			Help:      "Total number of fail-closed guard check timeouts by stage",
		},
		[]string{"stage"},
	)

	// Aggregation Metrics
	m.aggregationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_latency_milliseconds",
		Help:      "Histogram of statistics apply latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.statisticsRebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "statistics_rebuilds_total",
		Help:      "Total number of full statistics rebuilds from source records",
	})

	m.trackedSubjects = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_subjects",
		Help:      "Number of subjects with maintained statistics",
	})

	// Repository Metrics
	m.repositoryWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_write_latency_milliseconds",
		Help:      "Rating record write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.repositoryReadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_read_latency_milliseconds",
		Help:      "Rating record read latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.repositoryErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_errors_total",
		Help:      "Total number of repository failures after bounded retries",
	})

	m.recordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_total",
		Help:      "Total number of active rating records",
	})

	// Broadcast Metrics
	m.broadcastQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_queue_size",
		Help:      "Current size of the statistics broadcast queue",
	})

	m.broadcastPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_published_total",
		Help:      "Total number of statistics snapshots delivered to subscribers",
	})

	m.broadcastDropped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "broadcast_dropped_total",
			Help:      "Total number of dropped broadcast deliveries by cause",
		},
		[]string{"cause"},
	)

	m.broadcastSubscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_subscribers",
		Help:      "Current number of broadcast subscribers",
	})

	// Security Metrics
	m.securityEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "security_events_total",
		Help:      "Total number of security events emitted to the audit sink",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordSubmissionAccepted increments the accepted submissions counter.
func RecordSubmissionAccepted() {
	globalManager.submissionsAccepted.Inc()
}

// RecordSubmissionUpdated increments the update-in-place counter.
func RecordSubmissionUpdated() {
	globalManager.submissionsUpdated.Inc()
}

// RecordSubmissionRejected increments the rejected submissions counter for a kind.
func RecordSubmissionRejected(kind string) {
	globalManager.submissionsRejected.WithLabelValues(kind).Inc()
}

// RecordRateLimitDenial increments the rate limiter denial counter for a scope.
func RecordRateLimitDenial(scope string) {
	globalManager.rateLimitDenials.WithLabelValues(scope).Inc()
}

// RecordDuplicateDenial increments the cooldown denial counter.
func RecordDuplicateDenial() {
	globalManager.duplicateDenials.Inc()
}

// RecordSuspiciousFlag increments the suspicion counter for a heuristic reason.
func RecordSuspiciousFlag(reason string) {
	globalManager.suspiciousFlags.WithLabelValues(reason).Inc()
}

// RecordIdentityFallback increments the low-confidence identity counter.
func RecordIdentityFallback() {
	globalManager.identityFallbacks.Inc()
}

// RecordIdentityIssued increments the issued identities counter.
func RecordIdentityIssued() {
	globalManager.identitiesIssued.Inc()
}

// RecordCheckTimeout increments the fail-closed timeout counter for a stage.
func RecordCheckTimeout(stage string) {
	globalManager.checkTimeouts.WithLabelValues(stage).Inc()
}

// RecordAggregationLatency records statistics apply latency in milliseconds.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// RecordStatisticsRebuild increments the full rebuild counter.
func RecordStatisticsRebuild() {
	globalManager.statisticsRebuilds.Inc()
}

// UpdateTrackedSubjects sets the number of subjects with statistics.
func UpdateTrackedSubjects(count int) {
	globalManager.trackedSubjects.Set(float64(count))
}

// RecordRepositoryWriteLatency records record write latency in milliseconds.
func RecordRepositoryWriteLatency(latencyMs float64) {
	globalManager.repositoryWriteLatency.Observe(latencyMs)
}

// RecordRepositoryReadLatency records record read latency in milliseconds.
func RecordRepositoryReadLatency(latencyMs float64) {
	globalManager.repositoryReadLatency.Observe(latencyMs)
}

// RecordRepositoryError increments the repository failure counter.
func RecordRepositoryError() {
	globalManager.repositoryErrors.Inc()
}

// UpdateRecordsTotal sets the number of active rating records.
func UpdateRecordsTotal(count int) {
	globalManager.recordsTotal.Set(float64(count))
}

// UpdateBroadcastQueueSize sets the current broadcast queue size.
func UpdateBroadcastQueueSize(size int) {
	globalManager.broadcastQueueSize.Set(float64(size))
}

// RecordBroadcastPublished increments the delivered snapshots counter.
func RecordBroadcastPublished() {
	globalManager.broadcastPublished.Inc()
}

// RecordBroadcastDropped increments the dropped deliveries counter for a cause.
func RecordBroadcastDropped(cause string) {
	globalManager.broadcastDropped.WithLabelValues(cause).Inc()
}

// UpdateBroadcastSubscribers sets the current subscriber count.
func UpdateBroadcastSubscribers(count int) {
	globalManager.broadcastSubscribers.Set(float64(count))
}

// RecordSecurityEvent increments the audit event counter.
func RecordSecurityEvent() {
	globalManager.securityEvents.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the current memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a GC pause observation in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry for serving /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
