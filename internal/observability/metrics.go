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
	// Signal metrics
	MessagesReceived prometheus.Counter
	CandidatesFound  prometheus.Counter
	Verifications    *prometheus.CounterVec
	OpenAttempts     *prometheus.CounterVec
	CloseAttempts    *prometheus.CounterVec

	// Execution metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Recoveries        *prometheus.CounterVec

	// Sampling metrics
	SamplesTaken   prometheus.Counter
	SampleFailures prometheus.Counter
	LastPrice      prometheus.Gauge
	ExitDecisions  *prometheus.CounterVec

	// Position metrics
	PositionHeld     prometheus.Gauge
	RealizedPnLTotal prometheus.Gauge
	TradesClosed     *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	SwapCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_trader"
	}

	return &Metrics{
		// Signal metrics
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "messages_received_total",
			Help:      "Total number of chat messages received from tracked channels",
		}),
		CandidatesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "candidates_found_total",
			Help:      "Total number of messages that yielded a candidate address",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "verifications_total",
			Help:      "Total number of verification outcomes",
		}, []string{"result"}),
		OpenAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open_attempts_total",
			Help:      "Total number of open attempts by outcome",
		}, []string{"outcome"}),
		CloseAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "close_attempts_total",
			Help:      "Total number of close attempts by outcome",
		}, []string{"outcome"}),

		// Execution metrics
		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "executions_total",
			Help:      "Total number of swap executions by direction and outcome",
		}, []string{"direction", "outcome"}),
		ExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Swap execution duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"direction"}),
		Recoveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "recoveries_total",
			Help:      "Total number of timeout recovery checks by result",
		}, []string{"result"}),

		// Sampling metrics
		SamplesTaken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "samples_total",
			Help:      "Total number of price samples recorded",
		}),
		SampleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "sample_failures_total",
			Help:      "Total number of skipped samples",
		}),
		LastPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "last_price",
			Help:      "Last sampled price of the held token in funding units",
		}),
		ExitDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "exit_decisions_total",
			Help:      "Total number of sell decisions by reason",
		}, []string{"reason"}),

		// Position metrics
		PositionHeld: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "held",
			Help:      "1 while a position is held, 0 otherwise",
		}),
		RealizedPnLTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_pnl_raw_total",
			Help:      "Cumulative realized PnL in funding raw units",
		}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "trades_closed_total",
			Help:      "Total number of closed trades by outcome class",
		}, []string{"outcome"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		SwapCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "call_latency_seconds",
			Help:      "Swap API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMessage increments the received message counter, and the candidate counter when found.
func RecordMessage(candidateFound bool) {
	DefaultMetrics.MessagesReceived.Inc()
	if candidateFound {
		DefaultMetrics.CandidatesFound.Inc()
	}
}

// RecordVerification records a verification outcome.
func RecordVerification(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	DefaultMetrics.Verifications.WithLabelValues(result).Inc()
}

// RecordOpenAttempt records the outcome of an open attempt.
func RecordOpenAttempt(outcome string) {
	DefaultMetrics.OpenAttempts.WithLabelValues(outcome).Inc()
}

// RecordCloseAttempt records the outcome of a close attempt.
func RecordCloseAttempt(outcome string) {
	DefaultMetrics.CloseAttempts.WithLabelValues(outcome).Inc()
}

// RecordExecution records a swap execution.
func RecordExecution(direction, outcome string, seconds float64) {
	DefaultMetrics.Executions.WithLabelValues(direction, outcome).Inc()
	DefaultMetrics.ExecutionDuration.WithLabelValues(direction).Observe(seconds)
}

// RecordRecovery records a timeout recovery check result.
func RecordRecovery(recovered bool) {
	result := "failed"
	if recovered {
		result = "recovered"
	}
	DefaultMetrics.Recoveries.WithLabelValues(result).Inc()
}

// RecordSample records a price sample, or a skipped one when ok is false.
func RecordSample(price float64, ok bool) {
	if !ok {
		DefaultMetrics.SampleFailures.Inc()
		return
	}
	DefaultMetrics.SamplesTaken.Inc()
	DefaultMetrics.LastPrice.Set(price)
}

// RecordExitDecision records a sell decision.
func RecordExitDecision(reason string) {
	DefaultMetrics.ExitDecisions.WithLabelValues(reason).Inc()
}

// SetPositionHeld updates the position gauge.
func SetPositionHeld(held bool) {
	if held {
		DefaultMetrics.PositionHeld.Set(1)
		return
	}
	DefaultMetrics.PositionHeld.Set(0)
}

// RecordTradeClosed records a closed trade.
func RecordTradeClosed(outcomeClass string, pnl int64) {
	DefaultMetrics.TradesClosed.WithLabelValues(outcomeClass).Inc()
	DefaultMetrics.RealizedPnLTotal.Add(float64(pnl))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSwapLatency records swap API call latency.
func RecordSwapLatency(endpoint string, seconds float64) {
	DefaultMetrics.SwapCallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
