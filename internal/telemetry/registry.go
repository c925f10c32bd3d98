// Package telemetry exposes the process's prometheus metrics. Grounded on
// the coinbase bot's package-level metric vars (metrics.go), but wrapped
// in an explicit Registry struct instead of registering against
// prometheus's global default registry: the market maker's test suite
// constructs many independent components in the same process, and a
// package-level MustRegister panics on the second construction.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the market maker emits, each created
// against its own prometheus.Registry rather than the global one.
type Registry struct {
	reg *prometheus.Registry

	QuotesDropped     prometheus.Counter
	OrdersSubmitted   prometheus.Counter
	OrdersRejected    *prometheus.CounterVec
	RiskCheckDuration prometheus.Histogram
	Position          *prometheus.GaugeVec
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		QuotesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mm_quotes_dropped_total",
			Help: "Quotes dropped due to market-data queue backpressure.",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mm_orders_submitted_total",
			Help: "Orders accepted by pre-trade risk and enqueued to the execution boundary.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_orders_rejected_total",
			Help: "Orders rejected, by reason.",
		}, []string{"reason"}),
		RiskCheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mm_risk_check_duration_seconds",
			Help:    "Latency of a single pre-trade risk check.",
			Buckets: prometheus.DefBuckets,
		}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mm_position",
			Help: "Current signed position, by symbol.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(r.QuotesDropped, r.OrdersSubmitted, r.OrdersRejected, r.RiskCheckDuration, r.Position)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics in
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
