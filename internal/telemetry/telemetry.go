// Package telemetry exposes the engine's prometheus metrics, the ambient
// observability surface the spec's Non-goals exclude as a feature area but
// which the engine still carries per the source repo's instrumentation
// conventions.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge/histogram the engine emits.
type Metrics struct {
	OrdersSubmitted   *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
	RiskRejections    *prometheus.CounterVec
	CostRejections    prometheus.Counter
	ReconMismatches   *prometheus.CounterVec
	KillSwitchActive  prometheus.Gauge
	ScanLatency       prometheus.Histogram
	AllocatorTickTime prometheus.Histogram
	OpenExposureUsd   *prometheus.GaugeVec
}

// New registers and returns the engine's metrics against the default
// registry.
func New() *Metrics {
	return &Metrics{
		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_submitted_total", Help: "orders submitted by venue",
		}, []string{"venue"}),
		OrdersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total", Help: "orders rejected by reason",
		}, []string{"reason"}),
		RiskRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_risk_rejections_total", Help: "risk gate rejections by check",
		}, []string{"check"}),
		CostRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_cost_rejections_total", Help: "intents rejected by the cost gate",
		}),
		ReconMismatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_recon_mismatches_total", Help: "reconciliation mismatches by venue",
		}, []string{"venue"}),
		KillSwitchActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "engine_kill_switch_active", Help: "1 if the global kill switch is active",
		}),
		ScanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "engine_scan_duration_seconds", Help: "opportunity scan pass duration",
		}),
		AllocatorTickTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "engine_allocator_tick_duration_seconds", Help: "allocator tick duration",
		}),
		OpenExposureUsd: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_open_exposure_usd", Help: "current book exposure in usd",
		}, []string{"book"}),
	}
}
