package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	c := New()
	c.MessageReceived("metrics")
	c.MessageReceived("metrics")
	c.MessageDropped("metrics")
	c.ReconnectScheduled("frames")
	c.SetConnected("metrics", true)
	c.EventDispatched("metric")
	c.FrameRejected("CHIP-8")
	c.RequestDone("list_runs", nil)
	c.RequestDone("list_runs", errors.New("boom"))

	if got := testutil.ToFloat64(c.messages.WithLabelValues("metrics")); got != 2 {
		t.Fatalf("messages = %v", got)
	}
	if got := testutil.ToFloat64(c.connected.WithLabelValues("metrics")); got != 1 {
		t.Fatalf("connected = %v", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("list_runs", "error")); got != 1 {
		t.Fatalf("request errors = %v", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`chip8dash_transport_dropped_total{transport="metrics"} 1`,
		`chip8dash_transport_reconnects_scheduled_total{transport="frames"} 1`,
		`chip8dash_frame_render_errors_total{source="CHIP-8"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.MessageReceived("x")
	c.MessageDropped("x")
	c.ReconnectScheduled("x")
	c.SetConnected("x", true)
	c.EventDispatched("x")
	c.FrameRejected("x")
	c.RequestDone("x", nil)
	if c.Registry() != nil {
		t.Fatalf("nil collector returned a registry")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler code = %d", rec.Code)
	}
}
