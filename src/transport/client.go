// Package transport maintains one logical websocket connection to the backend
// and turns its messages into typed events.
//
// A Client walks Disconnected -> Connecting -> Connected -> Disconnected. Every
// failure (dial error, read error, remote close) leads back to Disconnected and
// schedules exactly one reconnect after a fixed delay. There is no backoff and
// no retry cap; Close (or cancelling the Start context) stops both the socket
// and the pending reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

// DefaultReconnectDelay is the fixed wait between a disconnect and the next dial.
const DefaultReconnectDelay = 5 * time.Second

// State is the connection state of a Client.
type State = events.ConnState

var (
	ErrAlreadyStarted = errors.New("transport already started")
	errClosed         = errors.New("transport closed")
)

// ConnectionError reports a failed dial or a broken connection.
type ConnectionError struct {
	Transport string
	URL       string
	Op        string // "dial" or "read"
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Transport, e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Options configures a Client. Name, URL and Decode are required.
type Options struct {
	Name           string
	URL            string
	Decode         events.Decoder
	ReconnectDelay time.Duration
	Clock          clock.Clock
	Dialer         *websocket.Dialer
	Buffer         int
	Telemetry      *telemetry.Collector
}

// Client is a single reconnecting websocket reader.
type Client struct {
	opts Options
	log  logging.Logger
	out  chan events.Event
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending *clock.Timer
	started bool
	closed  bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New validates opts and fills in defaults. The client does not dial until Start.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("transport: empty URL")
	}
	if opts.Decode == nil {
		return nil, errors.New("transport: nil decoder")
	}
	if opts.Name == "" {
		opts.Name = opts.URL
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	return &Client{
		opts: opts,
		log:  logging.Prefixed(opts.Name),
		out:  make(chan events.Event, opts.Buffer),
		done: make(chan struct{}),
	}, nil
}

// Events delivers decoded messages in arrival order, interleaved with
// events.StateChange values. It is closed after Close returns.
func (c *Client) Events() <-chan events.Event { return c.out }

// Name is the transport label used in logs, metrics and state events.
func (c *Client) Name() string { return c.opts.Name }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start dials in the background. Cancelling ctx is equivalent to Close.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		select {
		case <-c.ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	go c.connect()
	return nil
}

// Close tears down the socket, stops a pending reconnect and closes Events.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		if c.cancel != nil {
			c.cancel()
		}
		t := c.pending
		c.pending = nil
		conn := c.conn
		c.mu.Unlock()

		if t != nil && t.Stop() {
			// the timer never fired, so connect will not release its slot
			c.wg.Done()
		}
		if conn != nil {
			_ = conn.Close()
		}
		c.wg.Wait()
		close(c.out)
		c.log.Debugf("closed")
	})
	return nil
}

func (c *Client) connect() {
	defer c.wg.Done()

	c.mu.Lock()
	c.pending = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.setState(events.Connecting, nil)
	conn, _, err := c.opts.Dialer.DialContext(c.ctx, c.opts.URL, nil)
	if err != nil {
		c.disconnected(&ConnectionError{Transport: c.opts.Name, URL: c.opts.URL, Op: "dial", Err: err})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(events.Connected, nil)
	c.log.Infof("connected to %s", c.opts.URL)
	err = c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	if errors.Is(err, errClosed) {
		c.setState(events.Disconnected, nil)
		return
	}
	c.disconnected(&ConnectionError{Transport: c.opts.Name, URL: c.opts.URL, Op: "read", Err: err})
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return errClosed
			default:
			}
			return err
		}
		c.opts.Telemetry.MessageReceived(c.opts.Name)
		ev, err := c.opts.Decode(data)
		if err != nil {
			c.opts.Telemetry.MessageDropped(c.opts.Name)
			if events.IsMalformed(err) {
				c.log.Debugf("dropping malformed message: %v", err)
			} else {
				c.log.Warnf("dropping message: %v", err)
			}
			continue
		}
		if !c.emit(ev) {
			return errClosed
		}
	}
}

// disconnected moves to Disconnected and schedules a reconnect unless one is
// already pending or the client is closed.
func (c *Client) disconnected(err error) {
	c.setState(events.Disconnected, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending != nil {
		return
	}
	c.wg.Add(1)
	c.pending = c.opts.Clock.AfterFunc(c.opts.ReconnectDelay, c.connect)
	c.opts.Telemetry.ReconnectScheduled(c.opts.Name)
	c.log.Warnf("%v; reconnecting in %s", err, c.opts.ReconnectDelay)
}

func (c *Client) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.opts.Telemetry.SetConnected(c.opts.Name, s == events.Connected)
	c.emit(events.StateChange{Transport: c.opts.Name, State: s, Err: err})
}

func (c *Client) emit(ev events.Event) bool {
	select {
	case c.out <- ev:
		return true
	case <-c.done:
		return false
	}
}
