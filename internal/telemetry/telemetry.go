// Package telemetry exposes the Scheduler and Pair Engine's operating
// counters/gauges as Prometheus metrics, grounded on the same
// promauto package-level registration idiom the teacher's arbitrage
// sibling uses for its trading metrics. The core never reads these
// back; only the excluded dashboard scrapes them.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ticks counts scheduler loop iterations.
var Ticks = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hypergrid",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total number of scheduler tick-loop iterations",
	},
)

// Hits counts grid levels crossed per pair.
var Hits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hypergrid",
		Subsystem: "pairengine",
		Name:      "hits_total",
		Help:      "Total number of grid levels crossed",
	},
	[]string{"pair_id", "side"},
)

// Fills counts completed swaps per pair and outcome.
var Fills = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hypergrid",
		Subsystem: "pairengine",
		Name:      "fills_total",
		Help:      "Total number of completed swaps",
	},
	[]string{"pair_id", "status"},
)

// ValidationDenials counts guard-chain rejections by reason.
var ValidationDenials = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hypergrid",
		Subsystem: "validator",
		Name:      "denials_total",
		Help:      "Total number of candidates rejected, by guard reason",
	},
	[]string{"pair_id", "reason"},
)

// LadderSize reports the current number of levels in a pair's ladder.
var LadderSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "hypergrid",
		Subsystem: "pairengine",
		Name:      "ladder_size",
		Help:      "Current number of grid levels for a pair",
	},
	[]string{"pair_id"},
)

// PairBudgetUtilization reports (committed-released)/allocated per pair.
var PairBudgetUtilization = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "hypergrid",
		Subsystem: "pairengine",
		Name:      "budget_utilization_ratio",
		Help:      "Net committed exposure as a fraction of a pair's allocated budget",
	},
	[]string{"pair_id"},
)

// RealizedDayPnL reports the day's realized profit/loss in USD.
var RealizedDayPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hypergrid",
		Subsystem: "accountant",
		Name:      "realized_day_pnl_usd",
		Help:      "Realized profit and loss for the current trading day, in USD",
	},
)

// RecordHit increments the hit counter for a pair/side.
func RecordHit(pairID, side string) {
	Hits.WithLabelValues(pairID, side).Inc()
}

// RecordFill increments the fill counter for a pair/status.
func RecordFill(pairID, status string) {
	Fills.WithLabelValues(pairID, status).Inc()
}

// RecordValidationDenial increments the denial counter for a pair/reason.
func RecordValidationDenial(pairID, reason string) {
	ValidationDenials.WithLabelValues(pairID, reason).Inc()
}

// SetLadderSize updates the ladder-size gauge for a pair.
func SetLadderSize(pairID string, size int) {
	LadderSize.WithLabelValues(pairID).Set(float64(size))
}

// SetPairBudgetUtilization updates the budget-utilization gauge for a pair.
func SetPairBudgetUtilization(pairID string, ratio float64) {
	PairBudgetUtilization.WithLabelValues(pairID).Set(ratio)
}
