// Package metrics exposes Prometheus collectors for the relay server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "investigator"

// Metrics groups the relay and pipeline collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	started   prometheus.Counter
	finished  *prometheus.CounterVec
	published *prometheus.CounterVec
	dropped   prometheus.Counter
	clients   prometheus.Gauge
	gatherer  prometheus.Gatherer
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict. Pass a fresh registry in tests.
func MustNewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_started_total",
			Help:      "Investigations accepted by the server.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_finished_total",
			Help:      "Investigations that reached a final result or error.",
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "observations_published_total",
			Help:      "Observations delivered to at least one channel client.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "observations_dropped_total",
			Help:      "Observations dropped because no client was listening or a client was too slow.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "ws_clients_active",
			Help:      "Channel clients currently connected.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.started, m.finished, m.published, m.dropped, m.clients)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) InvestigationStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

// InvestigationFinished records a run ending with outcome "completed" or
// "error".
func (m *Metrics) InvestigationFinished(outcome string) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservationPublished(kind string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservationDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.clients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.clients.Dec()
}
