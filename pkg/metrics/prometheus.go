package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database Metrics
	dbQueryDuration    *prometheus.HistogramVec
	dbQueryErrorsTotal *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call History Window Metrics
	historyLoadsTotal     *prometheus.CounterVec
	historyRowsLoaded     *prometheus.CounterVec
	historyEvictionsTotal *prometheus.CounterVec
	historyRowRefreshes   prometheus.Counter
	feedEventsTotal       *prometheus.CounterVec

	// Payment Metrics
	paymentsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a dedicated
// registry so multiple services can run in one test binary
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "db_query_duration_seconds",
				Help:        "Database query latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		dbQueryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "db_query_errors_total",
				Help:        "Total number of database query errors",
				ConstLabels: labels,
			},
			[]string{"operation", "table"},
		),
		websocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket feed connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"direction", "type"},
		),
		historyLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "history_loads_total",
				Help:        "Total number of call history page loads",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		historyRowsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "history_rows_loaded_total",
				Help:        "Total number of call history rows loaded",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		historyEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "history_evictions_total",
				Help:        "Total number of rows evicted from call history windows",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		historyRowRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "history_row_refreshes_total",
				Help:        "Total number of targeted call history row refreshes",
				ConstLabels: labels,
			},
		),
		feedEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "feed_events_total",
				Help:        "Total number of call record events handled",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		paymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "payments_total",
				Help:        "Total number of payment flow attempts by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.dbQueryDuration,
		m.dbQueryErrorsTotal,
		m.websocketConnections,
		m.websocketMessagesTotal,
		m.historyLoadsTotal,
		m.historyRowsLoaded,
		m.historyEvictionsTotal,
		m.historyRowRefreshes,
		m.feedEventsTotal,
		m.paymentsTotal,
	)

	return m
}

// GetRegistry returns the registry backing this metrics set
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request with its outcome
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, HTTPStatusToLabel(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordDBQuery records a database query duration
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		m.dbQueryErrorsTotal.WithLabelValues(operation, table).Inc()
	}
}

// WSConnectionOpened increments the WebSocket connection gauge
func (m *Metrics) WSConnectionOpened() {
	m.websocketConnections.Inc()
}

// WSConnectionClosed decrements the WebSocket connection gauge
func (m *Metrics) WSConnectionClosed() {
	m.websocketConnections.Dec()
}

// RecordWSMessage counts a WebSocket message
func (m *Metrics) RecordWSMessage(direction, messageType string) {
	m.websocketMessagesTotal.WithLabelValues(direction, messageType).Inc()
}

// RecordHistoryLoad counts one page load and the rows it returned
func (m *Metrics) RecordHistoryLoad(direction string, rows int) {
	m.historyLoadsTotal.WithLabelValues(direction).Inc()
	m.historyRowsLoaded.WithLabelValues(direction).Add(float64(rows))
}

// RecordHistoryEviction counts rows evicted on window overflow
func (m *Metrics) RecordHistoryEviction(direction string, evicted int) {
	m.historyEvictionsTotal.WithLabelValues(direction).Add(float64(evicted))
}

// RecordRowRefresh counts a targeted row refresh
func (m *Metrics) RecordRowRefresh() {
	m.historyRowRefreshes.Inc()
}

// RecordFeedEvent counts a handled call record event
func (m *Metrics) RecordFeedEvent(kind string) {
	m.feedEventsTotal.WithLabelValues(kind).Inc()
}

// RecordPayment counts a payment attempt by outcome
func (m *Metrics) RecordPayment(outcome string) {
	m.paymentsTotal.WithLabelValues(outcome).Inc()
}

// HTTPStatusToLabel converts an HTTP status code to a coarse label
func HTTPStatusToLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
