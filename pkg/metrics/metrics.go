// Package metrics defines the Prometheus metric collectors used by the
// visitor service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	VisitorsRecorded     prometheus.Counter
	RecordFailures       prometheus.Counter
	VisitorsStored       prometheus.Gauge
	VisitorBrowsers      *prometheus.CounterVec
	ForwardTotal         *prometheus.CounterVec
	ForwardDropped       prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates the collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() for both arguments.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		VisitorsRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "visitors_recorded_total",
				Help: "Total visitor records appended.",
			},
		),
		RecordFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "visitor_record_failures_total",
				Help: "Total visitor writes rejected because the body was not a JSON object.",
			},
		),
		VisitorsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "visitors_stored",
				Help: "Number of visitor records held in memory.",
			},
		),
		VisitorBrowsers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_browser_total",
				Help: "Recorded visitors by classified browser family.",
			},
			[]string{"browser"},
		),
		ForwardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visitor_forward_total",
				Help: "Visitor records forwarded to sinks by sink and status.",
			},
			[]string{"sink", "status"},
		),
		ForwardDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "visitor_forward_dropped_total",
				Help: "Visitor records dropped because the forward buffer was full.",
			},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.VisitorsRecorded,
		m.RecordFailures,
		m.VisitorsStored,
		m.VisitorBrowsers,
		m.ForwardTotal,
		m.ForwardDropped,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
