package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"speechstream/internal/ports"
)

const (
	defaultWriteWait        = 10 * time.Second
	defaultCloseGrace       = 2 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	maxMessageSize          = 1 << 20
)

var ErrAlreadyConnected = errors.New("websocket transport already used")

var _ ports.Transport = (*Client)(nil)

type Option func(*Client)

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithWriteWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeWait = d
		}
	}
}

// WithCloseGrace bounds how long Close waits for the peer's close frame.
func WithCloseGrace(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.closeGrace = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// Client implements ports.Transport on a gorilla websocket. One client
// carries one connection; it cannot be reconnected.
type Client struct {
	log        *logrus.Entry
	dialer     websocket.Dialer
	writeWait  time.Duration
	closeGrace time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	closing bool
	closed  bool

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func New(opts ...Option) *Client {
	c := &Client{
		log: logrus.NewEntry(logrus.StandardLogger()),
		dialer: websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		writeWait:  defaultWriteWait,
		closeGrace: defaultCloseGrace,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "wsclient")
	return c
}

// Connect dials once. On success it calls Handler.OnOpen and starts reading.
func (c *Client) Connect(ctx context.Context, opts ports.ConnectOptions) error {
	c.mu.Lock()
	if c.conn != nil || c.dialing || c.closed || c.closing {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.dialing = true
	c.mu.Unlock()

	dialer := c.dialer
	if opts.TLSConfig != nil {
		dialer.TLSClientConfig = opts.TLSConfig
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.closed = true
		c.mu.Unlock()
		if resp != nil {
			return fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect websocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.dialing = false
	if c.closing || c.closed {
		c.closed = true
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("websocket closed during handshake")
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.WithField("url", opts.URL).Debug("websocket handshake complete")
	if opts.Handler != nil {
		opts.Handler.OnOpen()
	}
	go c.readLoop(conn, opts.Handler)
	return nil
}

func (c *Client) SendText(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

func (c *Client) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) write(kind int, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	unavailable := conn == nil || c.closing || c.closed
	c.mu.Unlock()
	if unavailable {
		return ports.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("failed to write websocket frame: %w", err)
	}
	return nil
}

// Close starts the close handshake and waits up to the close grace for the
// peer to answer before dropping the socket. It is safe to call repeatedly.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		finished := c.closed
		c.closing = true
		if conn == nil {
			c.closed = true
		}
		c.mu.Unlock()

		if conn == nil || finished {
			return
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			c.log.WithError(werr).Debug("failed to send close frame")
		}

		timer := time.NewTimer(c.closeGrace)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.log.Warn("peer did not complete the close handshake")
		}

		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}

func (c *Client) readLoop(conn *websocket.Conn, handler ports.TransportHandler) {
	defer close(c.done)

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, handler, err)
			return
		}
		if kind == websocket.TextMessage && handler != nil {
			handler.OnMessage(string(payload))
		}
	}
}

func (c *Client) finish(conn *websocket.Conn, handler ports.TransportHandler, err error) {
	_ = conn.Close()

	c.mu.Lock()
	localClose := c.closing
	c.closed = true
	c.mu.Unlock()

	if handler == nil {
		return
	}

	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		handler.OnClose(closeErr.Code, closeErr.Text, !localClose)
	case localClose:
		handler.OnClose(websocket.CloseNormalClosure, "", false)
	default:
		c.log.WithError(err).Warn("websocket read failed")
		handler.OnError(err)
		handler.OnClose(websocket.CloseAbnormalClosure, err.Error(), true)
	}
}
