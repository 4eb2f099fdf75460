// Package monitor exposes the service's Prometheus metrics.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectedClients   prometheus.Gauge
	ActiveRooms        prometheus.Gauge
	MessagesReceived   prometheus.Counter
	MatchesFinished    prometheus.Counter
	SettlementFailures prometheus.Counter
	MessageLatency     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of live websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound events received",
		}),
		MatchesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that reached a terminal outcome",
		}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Total number of failed reward settlement attempts",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Inbound event handling latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
}

// Monitor holds the metrics and their registry. Each Monitor registers into
// its own registry so tests can construct them freely.
type Monitor struct {
	metrics  *Metrics
	registry *prometheus.Registry
}

func New(namespace string) *Monitor {
	m := &Monitor{
		metrics:  NewMetrics(namespace),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.metrics.ConnectedClients,
		m.metrics.ActiveRooms,
		m.metrics.MessagesReceived,
		m.metrics.MatchesFinished,
		m.metrics.SettlementFailures,
		m.metrics.MessageLatency,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this Monitor's registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) IncConnectedClients() {
	m.metrics.ConnectedClients.Inc()
}

func (m *Monitor) DecConnectedClients() {
	m.metrics.ConnectedClients.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
}

func (m *Monitor) IncMatchesFinished() {
	m.metrics.MatchesFinished.Inc()
}

func (m *Monitor) IncSettlementFailures() {
	m.metrics.SettlementFailures.Inc()
}

func (m *Monitor) ObserveMessageLatency(d time.Duration) {
	m.metrics.MessageLatency.Observe(d.Seconds())
}
