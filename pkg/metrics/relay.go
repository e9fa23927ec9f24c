package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records connection and event throughput for the relay server.
type RelayMetrics struct {
	connections     prometheus.Gauge
	eventsReceived  *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Currently open relay connections.",
	})
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_received_total",
		Help: "Inbound relay events by name.",
	}, []string{"event"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_delivered_total",
		Help: "Outbound relay events by name.",
	}, []string{"event"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_delivery_seconds",
		Help:    "Time from inbound event receipt to fan-out completion.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	reg.MustRegister(connections, received, delivered, latency)
	return &RelayMetrics{
		connections:     connections,
		eventsReceived:  received,
		eventsDelivered: delivered,
		deliveryLatency: latency,
	}
}

func (m *RelayMetrics) ConnOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

func (m *RelayMetrics) ConnClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

func (m *RelayMetrics) EventReceived(event string) {
	if m == nil || m.eventsReceived == nil {
		return
	}
	m.eventsReceived.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *RelayMetrics) EventDelivered(event string) {
	if m == nil || m.eventsDelivered == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *RelayMetrics) ObserveDelivery(d time.Duration) {
	if m == nil || m.deliveryLatency == nil {
		return
	}
	m.deliveryLatency.Observe(d.Seconds())
}

func normalizeLabel(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}
