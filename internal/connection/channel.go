// Package connection owns the conversation-scoped channel to the chat server:
// it dials, classifies inbound frames, serializes outbound frames and
// publishes channel events in arrival order.
package connection

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrChannelClosed is returned by Send when no channel is open.
	ErrChannelClosed = errors.New("channel closed")
	// ErrAlreadyOpen is returned by Open while a channel is live.
	ErrAlreadyOpen = errors.New("channel already open")
	// ErrManagerClosed is returned by Open after Close.
	ErrManagerClosed = errors.New("connection manager closed")
	// ErrSendBufferFull is returned when the writer cannot keep up.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrTransport wraps abnormal transport failures.
	ErrTransport = errors.New("transport error")
	// ErrTransportClosed wraps a clean close initiated by the server.
	ErrTransportClosed = errors.New("transport closed")
)

// Channel is one live bidirectional message channel. Receive returns io.EOF
// (or an error wrapping ErrTransportClosed) when the peer closes cleanly.
type Channel interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// IsCleanClose reports whether err signals an orderly close by the peer.
func IsCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrTransportClosed)
}
