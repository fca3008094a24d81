// Package metrics holds the process-wide Prometheus collectors of the reload
// engine. Collectors register on the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Unit kinds used as the "kind" label.
const (
	KindType     = "type"
	KindFunction = "function"
	KindApp      = "app"
)

// Reload results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultCompileError = "compile_error"
	ResultNotFound     = "not_found"
)

var (
	// reloadsTotal counts reload attempts by unit kind, name and result
	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotswap_reloads_total",
		Help: "Total reload attempts by unit kind, name and result",
	}, []string{"kind", "name", "result"})

	// reloadDuration tracks compile plus publish latency
	reloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hotswap_reload_duration_seconds",
		Help:    "Reload duration in seconds, from source read to last rebind",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"kind"})

	// generation is the number of the live generation per unit
	generation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hotswap_generation",
		Help: "Number of the live generation per unit",
	}, []string{"kind", "name"})

	// liveHandles is the number of registered handles per type
	liveHandles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hotswap_live_handles",
		Help: "Registered live handles per type",
	}, []string{"type"})

	// stateTransferErrors counts failed state loads per type
	stateTransferErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotswap_state_transfer_errors_total",
		Help: "Total failed state transfers per type",
	}, []string{"type"})
)

// ObserveReload records one reload attempt.
func ObserveReload(kind, name, result string, elapsed time.Duration) {
	reloadsTotal.WithLabelValues(kind, name, result).Inc()
	reloadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetGeneration publishes the live generation number of a unit.
func SetGeneration(kind, name string, n int) {
	generation.WithLabelValues(kind, name).Set(float64(n))
}

// SetLiveHandles publishes the handle count of a type.
func SetLiveHandles(typeName string, n int) {
	liveHandles.WithLabelValues(typeName).Set(float64(n))
}

// StateTransferFailed counts one failed state load.
func StateTransferFailed(typeName string) {
	stateTransferErrors.WithLabelValues(typeName).Inc()
}
