// Package transport owns the websocket connection to a telemetry source.
//
// A Conn has an explicit lifecycle: Dial opens it, Poll asks the source for a
// fresh snapshot, Messages delivers the replies and Close tears it down. It is
// never shared through package state; callers pass it where it is needed.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

var (
	// ErrTransportUnavailable marks a connection that is absent or closed.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrUnsupportedEnvironment marks an endpoint this client cannot speak to.
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = time.Second
	DefaultReadLimit        = 4 << 20
	closeGrace              = time.Second
)

// Options tunes Dial. Zero values select the defaults above.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Header           http.Header
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	return o
}

// CheckEndpoint validates that endpoint is an absolute ws or wss URL.
func CheckEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "parse endpoint %q", endpoint), ErrUnsupportedEnvironment)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return errors.Wrapf(ErrUnsupportedEnvironment, "endpoint %q: scheme %q is not ws or wss", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrapf(ErrUnsupportedEnvironment, "endpoint %q has no host", endpoint)
	}
	return nil
}

// Conn is one open websocket session. Inbound frames are read by a single
// goroutine and handed to Messages; only the newest unread frame is kept.
type Conn struct {
	ws       *websocket.Conn
	endpoint string
	opts     Options

	writeMu sync.Mutex
	msgs    chan []byte
	done    chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	readErr   atomic.Pointer[error]

	received atomic.Uint64
	replaced atomic.Uint64
}

// Dial opens a websocket to endpoint. Failures are marked with
// ErrTransportUnavailable, or ErrUnsupportedEnvironment for a bad endpoint.
func Dial(ctx context.Context, endpoint string, opts Options) (*Conn, error) {
	if err := CheckEndpoint(endpoint); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "dial %s", endpoint), ErrTransportUnavailable)
	}
	ws.SetReadLimit(opts.ReadLimit)

	c := &Conn{
		ws:       ws,
		endpoint: endpoint,
		opts:     opts,
		msgs:     make(chan []byte, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.msgs)
	defer c.closed.Store(true)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.readErr.Store(&err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.received.Add(1)
		c.deliver(data)
	}
}

// deliver keeps the channel holding the newest frame. The read loop is the
// only sender, so a drained slot stays free for the following send.
func (c *Conn) deliver(data []byte) {
	select {
	case c.msgs <- data:
		return
	default:
	}
	select {
	case <-c.msgs:
		c.replaced.Add(1)
	default:
	}
	c.msgs <- data
}

// Poll sends an empty text frame asking for a snapshot. It does not wait for
// the reply.
func (c *Conn) Poll(ctx context.Context) error {
	if c == nil || c.closed.Load() {
		return errors.Wrap(ErrTransportUnavailable, "poll on closed connection")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, nil); err != nil {
		c.closed.Store(true)
		_ = c.ws.Close()
		return errors.Mark(errors.Wrapf(err, "poll %s", c.endpoint), ErrTransportUnavailable)
	}
	return nil
}

// Messages delivers reply payloads. The channel is closed when the read side
// ends.
func (c *Conn) Messages() <-chan []byte {
	return c.msgs
}

// Done is closed once the read side has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Open reports whether the connection can still be polled.
func (c *Conn) Open() bool {
	return c != nil && !c.closed.Load()
}

// Err returns the error that ended the read side, if any.
func (c *Conn) Err() error {
	if p := c.readErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Endpoint returns the URL the connection was dialed with.
func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Stats returns frames received and frames replaced before being consumed.
func (c *Conn) Stats() (received, replaced uint64) {
	return c.received.Load(), c.replaced.Load()
}

// Close sends a close frame and releases the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.writeMu.Unlock()
		err = c.ws.Close()
		<-c.done
	})
	return err
}
