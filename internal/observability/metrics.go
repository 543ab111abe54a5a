// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	CandlesProcessed  *prometheus.CounterVec
	SessionRollovers  *prometheus.CounterVec
	LevelsStaleSkips  *prometheus.CounterVec
	LevelPolarityFlip *prometheus.CounterVec

	// Signal metrics
	SignalsDetected  *prometheus.CounterVec
	SignalsValidated *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec

	// Trade metrics
	TradesOpened    *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	TradesRejected  *prometheus.CounterVec
	OpenTrades      prometheus.Gauge
	RealizedPnL     prometheus.Counter
	RealizedLoss    prometheus.Counter

	// Gateway metrics
	GatewayCallLatency *prometheus.HistogramVec
	GatewayCallErrors  *prometheus.CounterVec

	// Health metrics
	LastCandleTimestamp   *prometheus.GaugeVec
	LastRolloverTimestamp *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sst_bot"
	}

	return &Metrics{
		CandlesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "candles_processed_total",
			Help:      "Total number of closed candles processed",
		}, []string{"instrument"}),
		SessionRollovers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "levels",
			Name:      "session_rollovers_total",
			Help:      "Total number of session rollovers by outcome",
		}, []string{"instrument", "outcome"}),
		LevelsStaleSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "levels",
			Name:      "stale_skips_total",
			Help:      "Detection passes skipped because levels were stale",
		}, []string{"instrument"}),
		LevelPolarityFlip: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "levels",
			Name:      "polarity_flips_total",
			Help:      "Total number of level polarity flips",
		}, []string{"instrument", "side"}),

		SignalsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "detected_total",
			Help:      "Raw structure signals detected by setup and direction",
		}, []string{"instrument", "setup", "direction"}),
		SignalsValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "validated_total",
			Help:      "Signals that passed validation",
		}, []string{"instrument", "setup"}),
		SignalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Signals rejected by validation, by reason",
		}, []string{"instrument", "reason"}),

		TradesOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "opened_total",
			Help:      "Trades opened by setup and direction",
		}, []string{"instrument", "setup", "direction"}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "closed_total",
			Help:      "Trades closed by reason",
		}, []string{"instrument", "reason"}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "rejected_total",
			Help:      "Trades that failed to open, by reason",
		}, []string{"instrument", "reason"}),
		OpenTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "open",
			Help:      "Number of currently open trades",
		}),
		RealizedPnL: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "realized_profit_total",
			Help:      "Cumulative realized profit on winning trades",
		}),
		RealizedLoss: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "realized_loss_total",
			Help:      "Cumulative realized loss on losing trades",
		}),

		GatewayCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Broker gateway call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		GatewayCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_errors_total",
			Help:      "Broker gateway call errors by method",
		}, []string{"method"}),

		LastCandleTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candle_timestamp",
			Help:      "Unix timestamp of the last processed candle",
		}, []string{"instrument"}),
		LastRolloverTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_rollover_timestamp",
			Help:      "Unix timestamp of the last session rollover",
		}, []string{"instrument"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSignalRejected increments the rejection counter for a reason.
func (m *Metrics) RecordSignalRejected(instrument, reason string) {
	m.SignalsRejected.WithLabelValues(instrument, reason).Inc()
}

// RecordTradeClosed updates close counters and the realized PnL split.
func (m *Metrics) RecordTradeClosed(instrument, reason string, pnl float64) {
	m.TradesClosed.WithLabelValues(instrument, reason).Inc()
	if pnl >= 0 {
		m.RealizedPnL.Add(pnl)
	} else {
		m.RealizedLoss.Add(-pnl)
	}
}

// RecordGatewayCall records latency and error for a gateway method.
func (m *Metrics) RecordGatewayCall(method string, seconds float64, err error) {
	m.GatewayCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		m.GatewayCallErrors.WithLabelValues(method).Inc()
	}
}
