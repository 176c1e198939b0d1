// Package monitoring exposes Prometheus metrics and a health endpoint for
// backtest jobs.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

var _ backtest.Observer = (*Metrics)(nil)

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	inflight      prometheus.Gauge
	gatherer      prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		// Backtest metrics
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total number of simulations by final status",
			},
			[]string{"strategy", "status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Distribution of simulation wall time",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"strategy"},
		),

		// Cache metrics
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_cache_requests_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),

		// Optimizer metrics
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_optimizer_inflight",
				Help: "Grid combinations currently being simulated",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.runsTotal, m.runDuration, m.cacheRequests, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m, nil
}

// ObserveRun records a finished simulation
func (m *Metrics) ObserveRun(strategy, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(strategy, status).Inc()
	m.runDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveCacheRequest records a cache hit or miss
func (m *Metrics) ObserveCacheRequest(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// AddInflight moves the in-flight gauge by delta.
func (m *Metrics) AddInflight(delta int) {
	if m == nil {
		return
	}
	m.inflight.Add(float64(delta))
}

// Handler serves the Prometheus metrics endpoint. It serves the default
// gatherer when the registerer passed to NewMetrics cannot gather.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
