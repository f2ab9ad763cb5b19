// Package metrics holds the server's Prometheus instruments. Instruments are
// registered on the Registerer handed to New, so tests can use a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

type Metrics struct {
	IngestTotal          *prometheus.CounterVec
	ClassificationsTotal *prometheus.CounterVec
	ReclassifiedTotal    prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
	RateLimitHits        prometheus.Counter
	StreamConnections    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. When reg is also a Gatherer (as
// *prometheus.Registry is), Handler serves it; otherwise the default
// gatherer is used.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		IngestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldlog_ingest_total",
				Help: "Log entries received by the ingest endpoint, by outcome",
			},
			[]string{"outcome"},
		),
		ClassificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldlog_classifications_total",
				Help: "Newly stored entries by geofence classification",
			},
			[]string{"classification"},
		),
		ReclassifiedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldlog_reclassified_total",
				Help: "Entries whose classification changed during a correction pass",
			},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldlog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
		RateLimitHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldlog_rate_limit_hits_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
		StreamConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldlog_stream_connections",
				Help: "Open notification stream connections",
			},
		),
		gatherer: prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ObserveIngest counts one ingest outcome. Classification is counted only
// for newly created rows. A nil receiver is a no-op.
func (m *Metrics) ObserveIngest(outcome string, c geofence.Classification) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCreated && c != "" {
		m.ClassificationsTotal.WithLabelValues(string(c)).Inc()
	}
}

func (m *Metrics) ObserveReclassified(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReclassifiedTotal.Add(float64(n))
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitHits.Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// Handler exposes the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
