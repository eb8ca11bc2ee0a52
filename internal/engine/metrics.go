package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency per route and HTTP status
	RequestDuration *prometheus.HistogramVec

	// Decisions: kind (authorization/enrichment), outcome, reason code
	DecisionsTotal *prometheus.CounterVec

	// Estimated footprint per resolved merchant category
	CarbonFootprintKg *prometheus.HistogramVec

	// Errors rendered to callers, by code
	ErrorTotal *prometheus.CounterVec

	reg prometheus.Registerer
}

// JournalStats is the part of the decision journal exported as gauges.
type JournalStats interface {
	Len() int
	Dropped() int64
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: without a registry the collectors still work but are not exported
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		reg: reg,

		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ofg_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route", "status"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ofg_decisions_total",
			Help: "Total number of decisions by kind, outcome and reason.",
		}, []string{"kind", "outcome", "reason"}),

		CarbonFootprintKg: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ofg_carbon_footprint_kg",
			Help:    "Estimated CO2 per enriched transaction.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"category"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ofg_errors_total",
			Help: "Total number of error responses by code.",
		}, []string{"code"}),
	}
}

// TrackJournal exports buffer fill and drop count of the decision journal.
func (m *Metrics) TrackJournal(j JournalStats) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ofg_journal_buffer_utilization",
		Help: "Current number of events in the journal buffer.",
	}, func() float64 { return float64(j.Len()) })

	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "ofg_journal_dropped_total",
		Help: "Journal events dropped on overflow or shutdown.",
	}, func() float64 { return float64(j.Dropped()) })
}
