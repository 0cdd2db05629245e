// Package websocket provides connection.Dialer and connection.Channel over a
// gorilla/websocket client connection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/logging"
)

const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = int64(1 << 20)
	DefaultPingInterval = 30 * time.Second
)

// Option configures a Dialer.
type Option func(*Dialer)

// WithDialTimeout bounds the opening handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(dl *Dialer) { dl.dialTimeout = d }
}

// WithWriteTimeout bounds control frame writes when the caller's context has
// no deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(dl *Dialer) { dl.writeTimeout = d }
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(dl *Dialer) { dl.readLimit = n }
}

// WithPingInterval enables keepalive pings. Zero disables them along with
// the read deadline.
func WithPingInterval(d time.Duration) Option {
	return func(dl *Dialer) { dl.pingInterval = d }
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(dl *Dialer) { dl.header = h.Clone() }
}

// WithLogger sets the transport logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(dl *Dialer) { dl.logger = logger }
}

// Dialer opens WebSocket channels to one URL.
type Dialer struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64
	pingInterval time.Duration
	header       http.Header
	logger       zerolog.Logger
}

// NewDialer returns a dialer for url.
func NewDialer(url string, opts ...Option) *Dialer {
	d := &Dialer{
		url:          url,
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		readLimit:    DefaultReadLimit,
		pingInterval: DefaultPingInterval,
		logger:       logging.Component("websocket"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial performs the opening handshake.
func (d *Dialer) Dial(ctx context.Context) (connection.Channel, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.dialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s: status %d: %w", logging.RedactURL(d.url), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", logging.RedactURL(d.url), err)
	}
	d.logger.Debug().Str("url", logging.RedactURL(d.url)).Msg("websocket connected")

	ch := &Channel{
		conn:         conn,
		writeTimeout: d.writeTimeout,
		pingInterval: d.pingInterval,
		logger:       d.logger,
		done:         make(chan struct{}),
	}
	ch.start(d.readLimit)
	return ch, nil
}

// Channel is one WebSocket connection. Receive and Send may be called from
// one goroutine each.
type Channel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Channel) start(readLimit int64) {
	if readLimit > 0 {
		c.conn.SetReadLimit(readLimit)
	}
	if c.pingInterval <= 0 {
		return
	}
	readDeadline := 3 * c.pingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go c.keepalive()
}

func (c *Channel) keepalive() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// Receive reads the next text or binary message.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// Send writes payload as one text message.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a normal close frame and closes the connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		err = c.conn.Close()
	})
	return err
}

// classify maps an orderly close by the server to connection.ErrTransportClosed.
func classify(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %w", connection.ErrTransportClosed, err)
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("websocket closed with code %d: %w", closeErr.Code, err)
	}
	return err
}
