// Package telemetry provides Prometheus metrics for the offline gateway.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome labels.
const (
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeFallback    = "fallback"
	OutcomeUnavailable = "unavailable"
	OutcomePass        = "pass"
)

// Refresh result labels.
const (
	RefreshUpdated   = "updated"
	RefreshFailed    = "failed"
	RefreshSkipped   = "skipped"
	RefreshThrottled = "throttled"
)

// Metrics holds the gateway Prometheus metrics. All observation methods are
// safe to call on a nil receiver so components can run without telemetry.
type Metrics struct {
	FetchTotal      *prometheus.CounterVec
	RefreshTotal    *prometheus.CounterVec
	InstallDuration prometheus.Histogram
	StoreEntries    prometheus.Gauge
}

// New registers and returns the gateway metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		FetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_gateway_fetch_total",
			Help: "Intercepted fetches by outcome (hit, miss, fallback, unavailable, pass)",
		}, []string{"outcome"}),
		RefreshTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_gateway_refresh_total",
			Help: "Background revalidations by result (updated, failed, skipped, throttled)",
		}, []string{"result"}),
		InstallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "offline_gateway_install_duration_seconds",
			Help:    "Time to populate a cache store from the manifest",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}),
		StoreEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "offline_gateway_store_entries",
			Help: "Entries in the current cache store",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records an intercepted fetch outcome.
func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveRefresh records a background revalidation result.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

// ObserveInstall records the duration of a store install.
func (m *Metrics) ObserveInstall(d time.Duration) {
	if m == nil {
		return
	}
	m.InstallDuration.Observe(d.Seconds())
}

// SetStoreEntries records the current store size.
func (m *Metrics) SetStoreEntries(n int) {
	if m == nil {
		return
	}
	m.StoreEntries.Set(float64(n))
}
