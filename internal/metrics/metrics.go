package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the insights service.
// Instruments register against the given registerer so tests can use
// isolated registries.
type Metrics struct {
	SyncCycles        *prometheus.CounterVec
	SyncPolls         prometheus.Counter
	RateLimitHits     *prometheus.CounterVec
	AggregateDuration prometheus.Histogram
	WindowRows        *prometheus.GaugeVec
	FeedErrors        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncCycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "sync_cycles_total",
				Help:      "Sync cycles by outcome",
			},
			[]string{"result"}, // completed, cancelled, blocked, rate_limited, failed
		),
		SyncPolls: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "sync_polls_total",
				Help:      "Store polls issued during sync cycles",
			},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the sync rate limit",
			},
			[]string{"endpoint"},
		),
		AggregateDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "insights",
				Name:      "aggregate_duration_seconds",
				Help:      "Brand view aggregation latency",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		WindowRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "insights",
				Name:      "window_rows",
				Help:      "Raw rows currently cached per trailing range",
			},
			[]string{"range_days"},
		),
		FeedErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "feed_errors_total",
				Help:      "Failed feed pulls per trailing range",
			},
			[]string{"range_days"},
		),
	}
}

// RecordWindow updates the cached-row gauge for one range.
func (m *Metrics) RecordWindow(days, rows int) {
	m.WindowRows.WithLabelValues(strconv.Itoa(days)).Set(float64(rows))
}

// RecordFeedError counts a failed pull for one range.
func (m *Metrics) RecordFeedError(days int) {
	m.FeedErrors.WithLabelValues(strconv.Itoa(days)).Inc()
}

// ObserveAggregate records one aggregation pass.
func (m *Metrics) ObserveAggregate(d time.Duration) {
	m.AggregateDuration.Observe(d.Seconds())
}

// Handler serves the given gatherer, usually the same registry the
// instruments registered with.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
