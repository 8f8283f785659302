package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	insights     *prometheus.CounterVec
	cacheResults *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	recordsSent  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		insights: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_insights_total",
				Help: "Insights produced, by data source and asset class",
			},
			[]string{"source", "asset_class"},
		),
		cacheResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_cache_requests_total",
				Help: "Insight cache lookups by result",
			},
			[]string{"result"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_fallbacks_total",
				Help: "Synthetic fallbacks served, by reason",
			},
			[]string{"reason"},
		),
		recordsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_history_records_total",
				Help: "History records handed to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsight_last_price",
				Help: "Last live price seen for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsight_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordInsight(source, assetClass string) {
	r.insights.WithLabelValues(source, assetClass).Inc()
}

// RecordCache records a cache lookup result ("hit" or "miss").
func (r *Recorder) RecordCache(result string) {
	r.cacheResults.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordFallback(reason string) {
	r.fallbacks.WithLabelValues(reason).Inc()
}

// RecordRecordSent records a history record handed to a backend.
func (r *Recorder) RecordRecordSent(backend, symbol string) {
	r.recordsSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
