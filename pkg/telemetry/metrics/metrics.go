// Package metrics exposes the process's Prometheus gauges and counters:
// request totals by port and status, event-bus drop counts, mock-served
// counts and a running-proxies gauge. No other package updates these
// collectors, so they are exported at zero. It is a thin registration layer around
// github.com/prometheus/client_golang; every counter is namespaced under
// the configured Namespace (default "wiretap") so a single process can be
// scraped alongside other services without name collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of collectors the admin API serves at /metrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	MocksServedTotal  *prometheus.CounterVec
	EventBusDropped   *prometheus.CounterVec
	ProxiesRunning    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics set registered under namespace. Each process should
// create exactly one.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wiretap"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests observed by a proxy, by port and terminal status.",
		}, []string{"port", "status"}),
		MocksServedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mocks_served_total",
			Help:      "Total requests served from a mock, by port.",
		}, []string{"port"}),
		EventBusDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_dropped_total",
			Help:      "Total events dropped because a subscriber's channel was full, by channel.",
		}, []string{"channel"}),
		ProxiesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxies_running",
			Help:      "Number of proxies currently running across all kinds.",
		}),
		registry: registry,
	}

	registry.MustRegister(m.RequestsTotal, m.MocksServedTotal, m.EventBusDropped, m.ProxiesRunning)
	return m
}

// Handler returns the Prometheus exposition handler; the admin API mounts it
// at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
