package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer upgrades every request, counts connections and hands the socket to serve.
type wsServer struct {
	srv   *httptest.Server
	dials atomic.Int32
}

func newWSServer(t *testing.T, serve func(*websocket.Conn)) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) URL() string { return "ws" + strings.TrimPrefix(s.srv.URL, "http") }

// collector drains a client's event channel in the background.
type collector struct {
	mu     sync.Mutex
	events []events.Event
	done   chan struct{}
}

func collect(c *Client) *collector {
	col := &collector{done: make(chan struct{})}
	go func() {
		defer close(col.done)
		for ev := range c.Events() {
			col.mu.Lock()
			col.events = append(col.events, ev)
			col.mu.Unlock()
		}
	}()
	return col
}

func (col *collector) metrics() []events.Metric {
	col.mu.Lock()
	defer col.mu.Unlock()
	var out []events.Metric
	for _, ev := range col.events {
		if m, ok := ev.(events.Metric); ok {
			out = append(out, m)
		}
	}
	return out
}

func (col *collector) states() []events.StateChange {
	col.mu.Lock()
	defer col.mu.Unlock()
	var out []events.StateChange
	for _, ev := range col.events {
		if s, ok := ev.(events.StateChange); ok {
			out = append(out, s)
		}
	}
	return out
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClientDeliversInOrderAndDropsMalformed(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range []string{
			`{"type":"metric","name":"loss","step":1,"value":0.9}`,
			`not json`,
			`{"type":"metric","name":"loss"}`,
			`{"type":"metric","name":"loss","step":2,"value":0.7}`,
			`{"type":"metric","name":"acc","step":2,"value":0.5}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		holdOpen(conn)
	})

	tel := telemetry.New()
	c, err := New(Options{Name: "metrics", URL: srv.URL(), Decode: events.DecodeLive, Clock: clock.NewMock(), Telemetry: tel})
	require.NoError(t, err)
	col := collect(c)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(col.metrics()) == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, events.Connected, c.State())
	require.NoError(t, c.Close())
	<-col.done

	got := col.metrics()
	require.Equal(t, []events.Metric{
		{Name: "loss", Step: 1, Value: 0.9},
		{Name: "loss", Step: 2, Value: 0.7},
		{Name: "acc", Step: 2, Value: 0.5},
	}, got)

	states := col.states()
	require.GreaterOrEqual(t, len(states), 2)
	require.Equal(t, events.Connecting, states[0].State)
	require.Equal(t, events.Connected, states[1].State)
}

func TestClientSchedulesExactlyOneReconnectAfterDelay(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		// drop the client immediately
	})
	mock := clock.NewMock()
	c, err := New(Options{Name: "metrics", URL: srv.URL(), Decode: events.DecodeLive, Clock: mock})
	require.NoError(t, err)
	col := collect(c)
	defer func() {
		c.Close()
		<-col.done
	}()
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, c.reconnectPending, 2*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, srv.dials.Load())

	mock.Add(4 * time.Second)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, srv.dials.Load(), "redialled before the delay elapsed")
	require.True(t, c.reconnectPending())

	mock.Add(1 * time.Second)
	require.Eventually(t, func() bool { return srv.dials.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	// the second drop schedules a fresh timer relative to the new time
	require.Eventually(t, c.reconnectPending, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 2, srv.dials.Load())
}

func TestClientDialFailureReportsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	mock := clock.NewMock()
	c, err := New(Options{Name: "frames", URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Decode: events.DecodeChannel, Clock: mock})
	require.NoError(t, err)
	col := collect(c)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, c.reconnectPending, 2*time.Second, 5*time.Millisecond)
	c.Close()
	<-col.done

	states := col.states()
	require.Len(t, states, 2)
	require.Equal(t, events.Disconnected, states[1].State)
	var ce *ConnectionError
	require.True(t, errors.As(states[1].Err, &ce))
	require.Equal(t, "dial", ce.Op)
	require.Equal(t, "frames", ce.Transport)
}

func TestCloseStopsPendingReconnect(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mock := clock.NewMock()
	c, err := New(Options{Name: "metrics", URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Decode: events.DecodeLive, Clock: mock})
	require.NoError(t, err)
	col := collect(c)
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, c.reconnectPending, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	<-col.done
	require.False(t, c.reconnectPending())

	mock.Add(time.Minute)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, hits.Load())
	require.NoError(t, c.Close(), "second Close must be a no-op")
}

func TestCancelledContextClosesEvents(t *testing.T) {
	srv := newWSServer(t, holdOpen)
	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(Options{Name: "metrics", URL: srv.URL(), Decode: events.DecodeLive, Clock: clock.NewMock()})
	require.NoError(t, err)
	col := collect(c)
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return c.State() == events.Connected }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-col.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed after cancel")
	}
	require.False(t, c.reconnectPending())
	require.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestNewRequiresURLAndDecoder(t *testing.T) {
	if _, err := New(Options{Decode: events.DecodeLive}); err == nil {
		t.Fatalf("expected error for empty URL")
	}
	if _, err := New(Options{URL: "ws://x"}); err == nil {
		t.Fatalf("expected error for nil decoder")
	}
	c, err := New(Options{URL: "ws://x", Decode: events.DecodeLive})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.opts.ReconnectDelay != DefaultReconnectDelay || c.Name() != "ws://x" {
		t.Fatalf("defaults not applied: %+v", c.opts)
	}
}
