// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is
// valid; every method no-ops so tests can run without a registry.
type Metrics struct {
	// Engine metrics
	TicksTotal    prometheus.Counter
	TickDuration  prometheus.Histogram
	SellDecisions *prometheus.CounterVec

	// Execution metrics
	TradesExecuted  *prometheus.CounterVec
	ExecutionErrors prometheus.Counter

	// Position metrics
	OpenPositions  prometheus.Gauge
	PendingCredits prometheus.Gauge
	PhantomsPruned prometheus.Counter

	// Wallet metrics
	WalletBalanceSol prometheus.Gauge
	SpendableSol     prometheus.Gauge

	// Storage metrics
	StateSaveErrors  prometheus.Counter
	TraceWriteErrors prometheus.Counter

	// Feed metrics
	FeedErrors prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of engine ticks",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one full tick (reconcile + sell + buy pass)",
			Buckets:   prometheus.DefBuckets,
		}),
		SellDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sell_decisions_total",
			Help:      "Sell pipeline verdicts by action and reason",
		}, []string{"action", "reason"}),
		TradesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "trades_executed_total",
			Help:      "Executed trades by side",
		}, []string{"side"}),
		ExecutionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "errors_total",
			Help:      "Swap execution failures",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		PendingCredits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "pending_credits",
			Help:      "Current number of unconfirmed optimistic credits",
		}),
		PhantomsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "phantoms_pruned_total",
			Help:      "Positions dropped after the reconcile grace window",
		}),
		WalletBalanceSol: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_sol",
			Help:      "Last observed native SOL balance",
		}),
		SpendableSol: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "spendable_sol",
			Help:      "Last computed spend ceiling after reserves",
		}),
		StateSaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "state_save_errors_total",
			Help:      "Failed state blob persists",
		}),
		TraceWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "trace_write_errors_total",
			Help:      "Failed decision trace batch writes",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Market feed read failures",
		}),
	}
}

// Handler returns the Prometheus scrape handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(d.Seconds())
}

// RecordSellDecision counts a sell pipeline verdict.
func (m *Metrics) RecordSellDecision(action, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.SellDecisions.WithLabelValues(action, reason).Inc()
}

// RecordTrade counts an executed trade.
func (m *Metrics) RecordTrade(side string) {
	if m == nil {
		return
	}
	m.TradesExecuted.WithLabelValues(side).Inc()
}

// RecordExecutionError counts a failed swap execution.
func (m *Metrics) RecordExecutionError() {
	if m == nil {
		return
	}
	m.ExecutionErrors.Inc()
}

// SetPositionGauges updates the position gauges.
func (m *Metrics) SetPositionGauges(open, pendingCredits int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(open))
	m.PendingCredits.Set(float64(pendingCredits))
}

// AddPhantomsPruned counts pruned phantom positions.
func (m *Metrics) AddPhantomsPruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.PhantomsPruned.Add(float64(n))
}

// SetWalletGauges updates the balance gauges.
func (m *Metrics) SetWalletGauges(balance, spendable float64) {
	if m == nil {
		return
	}
	m.WalletBalanceSol.Set(balance)
	m.SpendableSol.Set(spendable)
}

// RecordStateSaveError counts a failed state persist.
func (m *Metrics) RecordStateSaveError() {
	if m == nil {
		return
	}
	m.StateSaveErrors.Inc()
}

// RecordTraceWriteError counts a failed trace batch write.
func (m *Metrics) RecordTraceWriteError() {
	if m == nil {
		return
	}
	m.TraceWriteErrors.Inc()
}

// RecordFeedError counts a feed read failure.
func (m *Metrics) RecordFeedError() {
	if m == nil {
		return
	}
	m.FeedErrors.Inc()
}
