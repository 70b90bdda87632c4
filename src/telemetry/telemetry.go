// Package telemetry exposes Prometheus metrics about the dashboard pipeline
// itself (messages, drops, reconnects, render failures).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several dashboards (and tests) can
// coexist in one process. All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	messages   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	connected  *prometheus.GaugeVec
	events     *prometheus.CounterVec
	renderErrs *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// New creates a collector with all metrics registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_transport_messages_total",
			Help: "Messages received per transport",
		}, []string{"transport"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_transport_dropped_total",
			Help: "Malformed messages dropped per transport",
		}, []string{"transport"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_transport_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled per transport",
		}, []string{"transport"}),
		connected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chip8dash_transport_connected",
			Help: "1 while the transport is connected",
		}, []string{"transport"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_session_events_total",
			Help: "Events dispatched by the session loop per kind",
		}, []string{"kind"}),
		renderErrs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_frame_render_errors_total",
			Help: "Frames rejected by the renderer per source",
		}, []string{"source"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chip8dash_http_requests_total",
			Help: "Request/response calls to the backend by operation and outcome",
		}, []string{"op", "outcome"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) MessageReceived(transport string) {
	if c != nil {
		c.messages.WithLabelValues(transport).Inc()
	}
}

func (c *Collector) MessageDropped(transport string) {
	if c != nil {
		c.dropped.WithLabelValues(transport).Inc()
	}
}

func (c *Collector) ReconnectScheduled(transport string) {
	if c != nil {
		c.reconnects.WithLabelValues(transport).Inc()
	}
}

// SetConnected records the connection flag of a transport.
func (c *Collector) SetConnected(transport string, up bool) {
	if c == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	c.connected.WithLabelValues(transport).Set(v)
}

func (c *Collector) EventDispatched(kind string) {
	if c != nil {
		c.events.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) FrameRejected(source string) {
	if c != nil {
		c.renderErrs.WithLabelValues(source).Inc()
	}
}

// RequestDone records a request/response call; outcome is "ok" or "error".
func (c *Collector) RequestDone(op string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.requests.WithLabelValues(op, outcome).Inc()
}
