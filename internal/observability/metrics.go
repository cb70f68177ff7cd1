package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service and ticket panel collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	cacheLookups    *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	sendFailures    prometheus.Counter
	statusRollbacks prometheus.Counter
	eventsBroadcast prometheus.Counter
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "desk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_http_errors_total",
			Help: "HTTP requests that ended in a domain error",
		}, []string{"method", "path", "code"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_panel_cache_lookups_total",
			Help: "Ticket detail cache lookups by outcome (hit, stale, miss)",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_panel_detail_fetches_total",
			Help: "Ticket detail fetches by mode (foreground, background, deduplicated)",
		}, []string{"mode"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_panel_message_send_failures_total",
			Help: "Optimistic message sends that failed",
		}),
		statusRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_panel_status_rollbacks_total",
			Help: "Optimistic status changes reverted after an API failure",
		}),
		eventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desk_realtime_events_broadcast_total",
			Help: "Ticket events pushed to websocket subscribers",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.requestDuration, m.errors,
		m.cacheLookups, m.fetches, m.sendFailures, m.statusRollbacks, m.eventsBroadcast,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// CacheLookup records a panel cache lookup outcome.
func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// DetailFetch records a ticket detail fetch.
func (m *Metrics) DetailFetch(mode string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(mode).Inc()
}

// SendFailed records a failed optimistic send.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

// StatusRolledBack records a reverted status change.
func (m *Metrics) StatusRolledBack() {
	if m == nil {
		return
	}
	m.statusRollbacks.Inc()
}

// EventBroadcast records a realtime push.
func (m *Metrics) EventBroadcast() {
	if m == nil {
		return
	}
	m.eventsBroadcast.Inc()
}
