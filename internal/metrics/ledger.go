package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ledger Prometheus metrics.
var (
	UsageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbot",
			Name:      "usage_events_total",
			Help:      "Total number of billed usage events",
		},
		[]string{"kind"},
	)

	UsageCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbot",
			Name:      "usage_cost_dollars_total",
			Help:      "Total billed cost in dollars",
		},
		[]string{"kind"},
	)

	BudgetRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vbot",
			Name:      "budget_remaining_dollars",
			Help:      "Remaining budget for the configured period",
		},
		[]string{"identity"},
	)

	BudgetRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vbot",
			Name:      "budget_rejections_total",
			Help:      "Requests rejected by the budget gate",
		},
		[]string{"reason"}, // "exhausted" / "not_allowed"
	)

	LedgerWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vbot",
			Name:      "ledger_write_failures_total",
			Help:      "Ledger persistence failures (memory kept the event)",
		},
	)
)

var ledgerMetricsRegistered bool

// RegisterLedgerMetrics registers Prometheus ledger metrics. Must be called once from main.
func RegisterLedgerMetrics() {
	if ledgerMetricsRegistered {
		return
	}
	prometheus.MustRegister(UsageEventsTotal)
	prometheus.MustRegister(UsageCostTotal)
	prometheus.MustRegister(BudgetRemaining)
	prometheus.MustRegister(BudgetRejectionsTotal)
	prometheus.MustRegister(LedgerWriteFailuresTotal)
	ledgerMetricsRegistered = true
}
