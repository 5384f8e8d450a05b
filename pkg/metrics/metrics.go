package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Requests counts handled HTTP requests by route and status.
	Requests *prometheus.CounterVec
	// Spawns counts llama-server process spawns.
	Spawns prometheus.Counter
	// Swaps counts orderly model swaps triggered by convergence.
	Swaps prometheus.Counter
	// AdmissionRejected counts requests rejected at the inflight ceiling.
	AdmissionRejected prometheus.Counter
	// Inflight tracks the number of requests currently being served.
	Inflight prometheus.Gauge
}

// New creates the gateway metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llamagate",
			Name:      "requests_total",
			Help:      "Handled HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		Spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamagate",
			Name:      "backend_spawns_total",
			Help:      "llama-server process spawns.",
		}),
		Swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamagate",
			Name:      "backend_swaps_total",
			Help:      "Orderly model swaps triggered by convergence.",
		}),
		AdmissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamagate",
			Name:      "admission_rejected_total",
			Help:      "Requests rejected at the inflight ceiling.",
		}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llamagate",
			Name:      "inflight_requests",
			Help:      "Requests currently being served.",
		}),
	}

	registry.MustRegister(m.Requests, m.Spawns, m.Swaps, m.AdmissionRejected, m.Inflight)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
