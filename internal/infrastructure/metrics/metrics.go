// Package metrics exposes Prometheus instrumentation for stock processing
// and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"medstock/internal/domain/event"
)

// StockMetrics counts stock event outcomes.
type StockMetrics struct {
	accepted  prometheus.Counter
	rejected  *prometheus.CounterVec
	lineItems prometheus.Histogram
	duration  prometheus.Histogram
}

// NewStockMetrics creates and registers stock processing metrics.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	m := &StockMetrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medstock",
			Name:      "stock_events_accepted_total",
			Help:      "Stock events accepted and applied to the ledger.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medstock",
			Name:      "stock_events_rejected_total",
			Help:      "Stock events rejected, labelled by violated rule or error code.",
		}, []string{"rule"}),
		lineItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medstock",
			Name:      "stock_event_line_items",
			Help:      "Line items per accepted stock event.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medstock",
			Name:      "stock_event_processing_seconds",
			Help:      "End-to-end stock event processing duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.accepted, m.rejected, m.lineItems, m.duration)
	return m
}

var _ event.Metrics = (*StockMetrics)(nil)

// EventAccepted records a successfully applied event.
func (m *StockMetrics) EventAccepted(lineItems int, duration time.Duration) {
	m.accepted.Inc()
	m.lineItems.Observe(float64(lineItems))
	m.duration.Observe(duration.Seconds())
}

// EventRejected records a rejection by rule key or error code.
func (m *StockMetrics) EventRejected(rule string) {
	m.rejected.WithLabelValues(rule).Inc()
}

// HTTPMetrics instruments the gin router.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medstock",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medstock",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Observe records one handled request.
func (m *HTTPMetrics) Observe(route, method, status string, duration time.Duration) {
	m.requests.WithLabelValues(route, method, status).Inc()
	m.duration.WithLabelValues(route, method).Observe(duration.Seconds())
}
