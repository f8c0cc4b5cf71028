// Package metrics defines the prometheus collectors for the preview server.
//
// Each Metrics owns its own registry so that several instances (tests, or a
// host embedding more than one server) never collide on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "preview"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Gauge
	broadcastMessages prometheus.Counter
	broadcastSkipped  prometheus.Counter
	unicastMessages   *prometheus.CounterVec
	inboundMessages   prometheus.Counter
	contentRequests   *prometheus.CounterVec
	serverRestarts    prometheus.Counter
}

// New creates a Metrics with a fresh registry that also exports the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of connected sync clients",
		}),
		broadcastMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Messages published on the broadcast channel",
		}),
		broadcastSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_skipped_total",
			Help:      "Broadcast messages dropped for subscribers that fell behind",
		}),
		unicastMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unicast_messages_total",
			Help:      "Unicast attempts by result",
		}, []string{"result"}),
		inboundMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Text frames received from sync clients",
		}),
		contentRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_requests_total",
			Help:      "Static content requests by status class",
		}, []string{"status"}),
		serverRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_starts_total",
			Help:      "Listener starts, including restarts",
		}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetConnections records the current size of the connection map.
func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) Broadcast() {
	if m != nil {
		m.broadcastMessages.Inc()
	}
}

func (m *Metrics) BroadcastSkipped(n uint64) {
	if m != nil && n > 0 {
		m.broadcastSkipped.Add(float64(n))
	}
}

// Unicast records a unicast attempt; result is "delivered", "not_found" or
// "invalid_address".
func (m *Metrics) Unicast(result string) {
	if m != nil {
		m.unicastMessages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Inbound() {
	if m != nil {
		m.inboundMessages.Inc()
	}
}

// ContentRequest records a static request by status class ("2xx", "3xx", ...).
func (m *Metrics) ContentRequest(status int) {
	if m != nil {
		m.contentRequests.WithLabelValues(statusClass(status)).Inc()
	}
}

func (m *Metrics) ServerStarted() {
	if m != nil {
		m.serverRestarts.Inc()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
