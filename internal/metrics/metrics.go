package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus metric the core emits. It is built once
// per process and handed to every component that needs to record against
// it; nothing here drives a trading decision, it only observes one.
type Registry struct {
	registry *prometheus.Registry

	OrdersPlaced    prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrdersRejected  prometheus.Counter
	FillLatency     prometheus.Histogram

	RiskDrawdown  prometheus.Gauge
	RiskDailyPnl  prometheus.Gauge
	RiskCooldownS prometheus.Gauge
	RiskDenials   *prometheus.CounterVec

	MergesTotal     prometheus.Counter
	MergedOrders    prometheus.Counter

	GridLevelState *prometheus.GaugeVec

	ReconcileIterations prometheus.Counter
	SpecCacheHits       prometheus.Counter
	SpecCacheMisses     prometheus.Counter
}

func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		registry: reg,

		OrdersPlaced:    f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_placed_total"}),
		OrdersFilled:    f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_filled_total"}),
		OrdersCancelled: f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_cancelled_total"}),
		OrdersRejected:  f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "orders_rejected_total"}),
		FillLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fill_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),

		RiskDrawdown:  f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "risk_drawdown_ratio"}),
		RiskDailyPnl:  f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "risk_daily_pnl"}),
		RiskCooldownS: f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "risk_cooldown_seconds"}),
		RiskDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_denials_total",
		}, []string{"reason"}),

		MergesTotal:  f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "merges_total"}),
		MergedOrders: f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "merged_orders_total"}),

		GridLevelState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "grid_level_state",
		}, []string{"state"}),

		ReconcileIterations: f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_iterations_total"}),
		SpecCacheHits:       f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "spec_cache_hits_total"}),
		SpecCacheMisses:     f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "spec_cache_misses_total"}),
	}
}

// Handler serves the registry over /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve starts a minimal metrics server; it does not block.
func Serve(addr string, r *Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
