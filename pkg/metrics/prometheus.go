// Package metrics provides Prometheus metrics for the ludus game backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Leaderboard
	leaderboardSubmissions *prometheus.CounterVec
	leaderboardEvictions   prometheus.Counter
	leaderboardMigrations  prometheus.Counter

	// Presence
	presenceEvents  prometheus.Counter
	presenceQueries prometheus.Counter
	presenceActive  prometheus.Histogram

	// Coupons
	couponRedemptions *prometheus.CounterVec
	couponConflicts   prometheus.Counter
	couponsCreated    prometheus.Counter

	// Chat
	chatMessages prometheus.Counter

	// Reviews
	reviewsStored prometheus.Counter
	reviewRatings prometheus.Histogram

	// Read cache
	cacheLookups *prometheus.CounterVec
	cacheEntries *prometheus.GaugeVec

	// Storage port
	storageLatency *prometheus.HistogramVec
	storageErrors  *prometheus.CounterVec
	lockWait       *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
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

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init rebuilds the global manager with opts on a fresh registry.
// Call it once at startup, before any recorder or GetRegistry is used.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(customRegistry))...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ludus",
		subsystem:        "api",
		histogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	m.leaderboardSubmissions = m.counterVec("leaderboard_submissions_total",
		"Performance record submissions by outcome (accepted, evicted, rejected, duplicate, error)", "outcome")
	m.leaderboardEvictions = m.counter("leaderboard_evictions_total",
		"Records evicted to make room for a better one")
	m.leaderboardMigrations = m.counter("leaderboard_legacy_migrations_total",
		"Legacy-schema performance records rewritten in the current schema")

	m.presenceEvents = m.counter("presence_events_total", "Presence pings recorded")
	m.presenceQueries = m.counter("presence_queries_total", "Presence count lookups")
	m.presenceActive = m.histogram("presence_active_count",
		"Active count returned by presence operations",
		[]float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000})

	m.couponRedemptions = m.counterVec("coupon_redemptions_total",
		"Coupon redemption attempts by outcome", "outcome")
	m.couponConflicts = m.counter("coupon_cas_conflicts_total",
		"Conditional coupon writes that lost a race and re-read")
	m.couponsCreated = m.counter("coupons_created_total", "Coupons created")

	m.chatMessages = m.counter("chat_messages_total", "Chat messages stored")

	m.reviewsStored = m.counter("reviews_stored_total", "Reviews stored")
	m.reviewRatings = m.histogram("review_rating", "Submitted review ratings", []float64{1, 2, 3, 4, 5})

	m.cacheLookups = m.counterVec("cache_lookups_total", "Read cache lookups by cache and result", "cache", "result")
	m.cacheEntries = m.gaugeVec("cache_entries", "Entries held by each read cache", "cache")

	m.storageLatency = m.histogramVec("storage_operation_latency_milliseconds",
		"Storage port call latency in milliseconds", "backend", "op")
	m.storageErrors = m.counterVec("storage_errors_total",
		"Storage port calls that failed with an infrastructure error", "backend", "op")
	m.lockWait = m.histogramVec("storage_lock_wait_milliseconds",
		"Time spent acquiring named locks", "backend")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and type", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that ended in an error", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordLeaderboardSubmission counts a submission with its outcome.
func RecordLeaderboardSubmission(outcome string) {
	globalManager.leaderboardSubmissions.WithLabelValues(outcome).Inc()
}

// RecordLeaderboardEviction counts an evicted record.
func RecordLeaderboardEviction() {
	globalManager.leaderboardEvictions.Inc()
}

// RecordLeaderboardMigration counts a legacy record rewritten in place.
func RecordLeaderboardMigration() {
	globalManager.leaderboardMigrations.Inc()
}

// RecordPresenceEvent counts a presence ping and the active count it produced.
func RecordPresenceEvent(active int) {
	globalManager.presenceEvents.Inc()
	globalManager.presenceActive.Observe(float64(active))
}

// RecordPresenceQuery counts a read-only presence lookup.
func RecordPresenceQuery(active int) {
	globalManager.presenceQueries.Inc()
	globalManager.presenceActive.Observe(float64(active))
}

// RecordCouponRedemption counts a redemption attempt with its outcome.
func RecordCouponRedemption(outcome string) {
	globalManager.couponRedemptions.WithLabelValues(outcome).Inc()
}

// RecordCouponConflict counts a lost conditional write.
func RecordCouponConflict() {
	globalManager.couponConflicts.Inc()
}

// RecordCouponCreated counts a created coupon.
func RecordCouponCreated() {
	globalManager.couponsCreated.Inc()
}

// RecordChatMessage counts a stored chat message.
func RecordChatMessage() {
	globalManager.chatMessages.Inc()
}

// RecordReviewStored counts a stored review and its rating.
func RecordReviewStored(rating int) {
	globalManager.reviewsStored.Inc()
	globalManager.reviewRatings.Observe(float64(rating))
}

// RecordCacheHit counts a read cache hit.
func RecordCacheHit(cache string) {
	globalManager.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss counts a read cache miss.
func RecordCacheMiss(cache string) {
	globalManager.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// UpdateCacheEntries sets the number of entries in a read cache.
func UpdateCacheEntries(cache string, n int64) {
	globalManager.cacheEntries.WithLabelValues(cache).Set(float64(n))
}

// RecordStorageOperation records storage call latency.
func RecordStorageOperation(backend, op string, latencyMs float64) {
	globalManager.storageLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStorageError counts a failed storage call.
func RecordStorageError(backend, op string) {
	globalManager.storageErrors.WithLabelValues(backend, op).Inc()
}

// RecordLockWait records how long a lock acquisition took.
func RecordLockWait(backend string, latencyMs float64) {
	globalManager.lockWait.WithLabelValues(backend).Observe(latencyMs)
}

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
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

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
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
