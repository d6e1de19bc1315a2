package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the registry service. A single
// instance is created in main and injected everywhere it is consumed.
type Metrics struct {
	RegistrationsTotal   *prometheus.CounterVec
	LookupsTotal         *prometheus.CounterVec
	BatchLookupsTotal    prometheus.Counter
	BatchEntriesReturned prometheus.Histogram
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates and registers all instruments on the default registerer.
func New() *Metrics {
	return &Metrics{
		RegistrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meld_registrations_total",
			Help: "Registration attempts by outcome (created, refreshed, rejected)",
		}, []string{"outcome"}),
		LookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meld_lookups_total",
			Help: "Point lookups by outcome (hit, miss)",
		}, []string{"outcome"}),
		BatchLookupsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meld_batch_lookups_total",
			Help: "Delta sync requests served",
		}),
		BatchEntriesReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meld_batch_entries_returned",
			Help:    "Entries returned per delta sync response",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meld_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
