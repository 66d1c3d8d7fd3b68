package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// All Record* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Ethereum RPC Metrics
	ethRPCCallsTotal   *prometheus.CounterVec
	ethRPCCallDuration *prometheus.HistogramVec
	ethLogsPerQuery    prometheus.Histogram
	ethSubscriptions   *prometheus.CounterVec
	ethHeaderCacheHits *prometheus.CounterVec

	// Transfer Processing Metrics
	transfersObservedTotal *prometheus.CounterVec
	transfersDecodeErrors  prometheus.Counter
	transfersDuplicates    *prometheus.CounterVec
	transfersRemovedTotal  prometheus.Counter
	feedSize               prometheus.Gauge
	feedEventsDropped      prometheus.Counter

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Ethereum RPC Metrics
		ethRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eth_rpc_calls_total",
				Help: "Total number of Ethereum JSON-RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		ethRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eth_rpc_call_duration_seconds",
				Help:    "Duration of Ethereum JSON-RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		ethLogsPerQuery: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eth_logs_per_query",
				Help:    "Number of logs returned per eth_getLogs call",
				Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000, 5000},
			},
		),
		ethSubscriptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eth_subscriptions_total",
				Help: "Total number of live log subscriptions started, by mode",
			},
			[]string{"mode"},
		),
		ethHeaderCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eth_header_cache_lookups_total",
				Help: "Block header cache lookups by result",
			},
			[]string{"result"},
		),

		// Transfer Processing Metrics
		transfersObservedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_observed_total",
				Help: "Total number of DAI transfers decoded, by source",
			},
			[]string{"source"},
		),
		transfersDecodeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transfers_decode_errors_total",
				Help: "Total number of Transfer logs that failed ABI decoding",
			},
		),
		transfersDuplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_duplicates_total",
				Help: "Total number of duplicate transfer records dropped, by source",
			},
			[]string{"source"},
		),
		transfersRemovedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transfers_removed_total",
				Help: "Total number of transfers removed by chain reorganisation",
			},
		),
		feedSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_size",
				Help: "Number of transfers currently held in the dashboard feed",
			},
		),
		feedEventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "feed_events_dropped_total",
				Help: "Total number of feed events dropped for slow subscribers",
			},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Ethereum RPC metric helpers

// RecordRPCCall records an Ethereum JSON-RPC call with duration.
func (m *Metrics) RecordRPCCall(method string, err error, duration float64) {
	if m == nil {
		return
	}
	m.ethRPCCallsTotal.WithLabelValues(method, statusFromError(err)).Inc()
	m.ethRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordLogsPerQuery records the number of logs returned by a log query.
func (m *Metrics) RecordLogsPerQuery(count int) {
	if m == nil {
		return
	}
	m.ethLogsPerQuery.Observe(float64(count))
}

// RecordSubscription records the start of a live subscription ("websocket" or "polling").
func (m *Metrics) RecordSubscription(mode string) {
	if m == nil {
		return
	}
	m.ethSubscriptions.WithLabelValues(mode).Inc()
}

// RecordHeaderCacheLookup records a header cache hit or miss.
func (m *Metrics) RecordHeaderCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ethHeaderCacheHits.WithLabelValues(result).Inc()
}

// Transfer processing metric helpers

// RecordTransfersObserved records decoded transfers.
func (m *Metrics) RecordTransfersObserved(source string, count int) {
	if m == nil {
		return
	}
	m.transfersObservedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordDecodeError records a Transfer log that could not be decoded.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.transfersDecodeErrors.Inc()
}

// RecordDuplicates records duplicate records dropped by the merge step.
func (m *Metrics) RecordDuplicates(source string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.transfersDuplicates.WithLabelValues(source).Add(float64(count))
}

// RecordTransferRemoved records a transfer reorged out of the chain.
func (m *Metrics) RecordTransferRemoved() {
	if m == nil {
		return
	}
	m.transfersRemovedTotal.Inc()
}

// SetFeedSize records the current feed length.
func (m *Metrics) SetFeedSize(n int) {
	if m == nil {
		return
	}
	m.feedSize.Set(float64(n))
}

// RecordFeedEventDropped records an event dropped for a slow subscriber.
func (m *Metrics) RecordFeedEventDropped() {
	if m == nil {
		return
	}
	m.feedEventsDropped.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, statusFromError(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	if m == nil {
		return
	}
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject string, err error, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, statusFromError(err)).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusFromError(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
