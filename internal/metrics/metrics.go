// Package metrics exposes Prometheus instrumentation for the sync core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Collector owns a private registry so several conversations (or tests) can
// each instrument independently.
type Collector struct {
	registry *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	malformedFrames prometheus.Counter
	transportEvents *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	pendingSends    prometheus.Gauge
	historyPages    prometheus.Counter
}

// New creates a collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames by type and result.",
		}, []string{"type", "result"}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Inbound payloads that failed to decode.",
		}),
		transportEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_events_total",
			Help:      "Channel lifecycle events by kind.",
		}, []string{"kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts by result.",
		}, []string{"result"}),
		pendingSends: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_sends",
			Help:      "Messages sent but not yet acknowledged.",
		}),
		historyPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pages_total",
			Help:      "History pages applied to the timeline.",
		}),
	}
	c.registry.MustRegister(
		c.framesReceived,
		c.framesSent,
		c.malformedFrames,
		c.transportEvents,
		c.reconnects,
		c.pendingSends,
		c.historyPages,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// FrameReceived counts a decoded inbound frame.
func (c *Collector) FrameReceived(frameType string) {
	if c == nil {
		return
	}
	if frameType == "" {
		frameType = "unknown"
	}
	c.framesReceived.WithLabelValues(frameType).Inc()
}

// FrameSent counts an outbound frame attempt.
func (c *Collector) FrameSent(frameType string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.framesSent.WithLabelValues(frameType, result).Inc()
}

// MalformedFrame counts a payload that failed to decode.
func (c *Collector) MalformedFrame() {
	if c == nil {
		return
	}
	c.malformedFrames.Inc()
}

// TransportEvent counts a connect, error or close event.
func (c *Collector) TransportEvent(kind string) {
	if c == nil {
		return
	}
	c.transportEvents.WithLabelValues(kind).Inc()
}

// ReconnectAttempt counts a reconnect attempt.
func (c *Collector) ReconnectAttempt(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.reconnects.WithLabelValues(result).Inc()
}

// SetPending records the current size of the pending-send set.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pendingSends.Set(float64(n))
}

// HistoryPage counts an applied history page.
func (c *Collector) HistoryPage() {
	if c == nil {
		return
	}
	c.historyPages.Inc()
}
