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
	// Guard metrics
	GuardSessionsActive   prometheus.Gauge
	GuardSessionsStarted  prometheus.Counter
	GuardSessionsStopped  *prometheus.CounterVec
	ExternalBuysRecorded  prometheus.Counter
	ExternalSolObserved   prometheus.Counter
	ActionsTriggered      *prometheus.CounterVec

	// Watcher metrics
	BuyEventsParsed  prometheus.Counter
	BuyEventErrors   *prometheus.CounterVec
	WSMessageLatency prometheus.Histogram

	// Liquidation metrics
	SweepsTotal        prometheus.Counter
	PositionsSold      *prometheus.CounterVec
	SolRecovered       prometheus.Counter
	SweepDuration      prometheus.Histogram
	SellAttemptLatency prometheus.Histogram

	// Solana client metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trench_guard"
	}

	return &Metrics{
		GuardSessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "sessions_active",
			Help:      "Number of currently armed or triggered guard sessions",
		}),
		GuardSessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "sessions_started_total",
			Help:      "Total number of guard sessions initialized",
		}),
		GuardSessionsStopped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "sessions_stopped_total",
			Help:      "Total number of guard sessions stopped by final state",
		}, []string{"state"}),
		ExternalBuysRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "external_buys_total",
			Help:      "Total number of non-whitelisted buy alerts recorded",
		}),
		ExternalSolObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "external_sol_total",
			Help:      "Total external SOL volume observed across all sessions",
		}),
		ActionsTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "actions_triggered_total",
			Help:      "Total protective actions emitted by action kind",
		}, []string{"action"}),

		BuyEventsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "buy_events_parsed_total",
			Help:      "Total number of buy events parsed from the chain feed",
		}),
		BuyEventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "buy_event_errors_total",
			Help:      "Total buy event processing errors by type",
		}, []string{"error_type"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "sweeps_total",
			Help:      "Total number of liquidation sweeps executed",
		}),
		PositionsSold: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "positions_total",
			Help:      "Total positions processed by outcome",
		}, []string{"outcome"}),
		SolRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "sol_recovered_total",
			Help:      "Total SOL received across all sweeps",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "sweep_duration_seconds",
			Help:      "Liquidation sweep duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		SellAttemptLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "sell_attempt_latency_seconds",
			Help:      "Per-position sell latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSessionStarted tracks a new guard session.
func RecordSessionStarted() {
	DefaultMetrics.GuardSessionsStarted.Inc()
	DefaultMetrics.GuardSessionsActive.Inc()
}

// RecordSessionStopped tracks a stopped guard session.
func RecordSessionStopped(finalState string) {
	DefaultMetrics.GuardSessionsStopped.WithLabelValues(finalState).Inc()
	DefaultMetrics.GuardSessionsActive.Dec()
}

// RecordExternalBuy tracks one recorded external-buy alert.
func RecordExternalBuy(solAmount float64) {
	DefaultMetrics.ExternalBuysRecorded.Inc()
	DefaultMetrics.ExternalSolObserved.Add(solAmount)
}

// RecordActionTriggered tracks an emitted protective action.
func RecordActionTriggered(action string) {
	DefaultMetrics.ActionsTriggered.WithLabelValues(action).Inc()
}

// RecordBuyEventParsed tracks a parsed buy event.
func RecordBuyEventParsed() {
	DefaultMetrics.BuyEventsParsed.Inc()
}

// RecordBuyEventError tracks a buy event processing error.
func RecordBuyEventError(errorType string) {
	DefaultMetrics.BuyEventErrors.WithLabelValues(errorType).Inc()
}

// RecordSellResult tracks one per-position liquidation outcome.
func RecordSellResult(outcome string, solReceived float64) {
	DefaultMetrics.PositionsSold.WithLabelValues(outcome).Inc()
	DefaultMetrics.SolRecovered.Add(solReceived)
}

// RecordSweep tracks a completed liquidation sweep.
func RecordSweep(durationSeconds float64) {
	DefaultMetrics.SweepsTotal.Inc()
	DefaultMetrics.SweepDuration.Observe(durationSeconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
