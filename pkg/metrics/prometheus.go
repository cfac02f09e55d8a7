package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions   *prometheus.CounterVec
	orders      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	confidence  *prometheus.GaugeVec
	regime      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spectregate_decisions_total",
				Help: "Gate decisions by outcome (submitted, signal, idle, blocked)",
			},
			[]string{"symbol", "outcome"},
		),
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spectregate_orders_total",
				Help: "Orders submitted to the host by direction",
			},
			[]string{"symbol", "direction"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spectregate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		confidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spectregate_inference_confidence",
				Help: "Last classification confidence per symbol",
			},
			[]string{"symbol"},
		),
		regime: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spectregate_regime_active",
				Help: "Active regime flag per symbol (1 for the current regime)",
			},
			[]string{"symbol", "regime"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spectregate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecision records one gate outcome.
func (r *Recorder) RecordDecision(symbol, outcome string) {
	r.decisions.WithLabelValues(symbol, outcome).Inc()
}

// RecordOrder records a submitted order.
func (r *Recorder) RecordOrder(symbol, direction string) {
	r.orders.WithLabelValues(symbol, direction).Inc()
}

// RecordRegime records the current regime and its confidence.
func (r *Recorder) RecordRegime(symbol, regime string, confidence float64) {
	for _, known := range []string{"TRENDING", "MEAN_REVERTING", "NO_TRADE"} {
		v := 0.0
		if known == regime {
			v = 1.0
		}
		r.regime.WithLabelValues(symbol, known).Set(v)
	}
	r.confidence.WithLabelValues(symbol).Set(confidence)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
