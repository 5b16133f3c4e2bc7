package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are process-global: the engine is a singleton per process, and
// Prometheus collectors are conventionally registered once at package init
// rather than threaded through every call site that wants to observe one.
var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "polymarket_mm",
		Name:      "ticks_total",
		Help:      "Total number of trading-loop ticks evaluated.",
	})

	fillsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "polymarket_mm",
		Name:      "fills_total",
		Help:      "Total number of fills applied to positions.",
	})

	signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polymarket_mm",
		Name:      "signals_total",
		Help:      "Total number of strategy signals by kind and verdict.",
	}, []string{"kind", "verdict"})

	globalExposure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polymarket_mm",
		Name:      "global_exposure_usd",
		Help:      "Current aggregate USD exposure across all tracked positions.",
	})

	killSwitchActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "polymarket_mm",
		Name:      "kill_switch_active",
		Help:      "1 if the risk kill switch is currently engaged, 0 otherwise.",
	})
)

func init() {
	prometheus.MustRegister(ticksTotal, fillsTotal, signalsTotal, globalExposure, killSwitchActive)
}

// RecordTick increments the tick counter. Called once per trading-loop tick.
func RecordTick() {
	ticksTotal.Inc()
}

// RecordFill increments the fill counter. Called once per applied fill.
func RecordFill() {
	fillsTotal.Inc()
}

// RecordSignal increments the signal counter for the given kind/verdict pair,
// e.g. ("buy", "approved") or ("sell", "rejected").
func RecordSignal(kind, verdict string) {
	signalsTotal.WithLabelValues(kind, verdict).Inc()
}

// RecordExposure sets the current global exposure gauge, in USD.
func RecordExposure(usd float64) {
	globalExposure.Set(usd)
}

// RecordKillSwitch sets the kill-switch gauge to 1 (engaged) or 0 (clear).
func RecordKillSwitch(active bool) {
	if active {
		killSwitchActive.Set(1)
		return
	}
	killSwitchActive.Set(0)
}
