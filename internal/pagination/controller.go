// Package pagination issues history requests for one conversation, tracks
// the running offset and sends read receipts.
package pagination

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/wire"
)

// DefaultPageLimit is the number of messages requested per page.
const DefaultPageLimit = 30

var (
	// ErrConversationClosed is returned by every operation after Close.
	ErrConversationClosed = errors.New("conversation closed")
	// ErrRequestInFlight is returned when a history request is outstanding.
	ErrRequestInFlight = errors.New("history request already in flight")
)

// Sender transmits outbound frames.
type Sender interface {
	Send(frame wire.Outbound) error
}

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingInitialHistory
	StateReady
	StateAwaitingMoreHistory
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInitialHistory:
		return "awaiting_initial_history"
	case StateReady:
		return "ready"
	case StateAwaitingMoreHistory:
		return "awaiting_more_history"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Cursor is where the next history page starts. Each page advances Offset
// by its length; RequestHistoryFrom moves it to the requested offset, which
// may be behind pages already held.
type Cursor struct {
	Offset int
	Limit  int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageLimit sets the page size.
func WithPageLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.cursor.Limit = n
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics counts history pages.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller serializes history requests for one peer.
type Controller struct {
	sender  Sender
	peerID  int64
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu          sync.Mutex
	cursor      Cursor
	state       State
	fullyLoaded bool
}

// New creates a controller requesting history of the conversation with peerID.
func New(sender Sender, peerID int64, opts ...Option) *Controller {
	c := &Controller{
		sender: sender,
		peerID: peerID,
		logger: logging.Component("pagination"),
		cursor: Cursor{Limit: DefaultPageLimit},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestHistory requests the page at the current offset.
func (c *Controller) RequestHistory() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLocked(c.cursor.Offset)
}

// RequestHistoryFrom requests the page starting at offset. The cursor
// continues from offset once the page arrives.
func (c *Controller) RequestHistoryFrom(offset int) error {
	if offset < 0 {
		return fmt.Errorf("negative history offset %d", offset)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLocked(offset)
}

func (c *Controller) requestLocked(offset int) error {
	switch c.state {
	case StateClosed:
		return ErrConversationClosed
	case StateAwaitingInitialHistory, StateAwaitingMoreHistory:
		return ErrRequestInFlight
	}

	frame := wire.HistoryRequest{UID: c.peerID, Offset: offset, Limit: c.cursor.Limit}
	if err := c.sender.Send(frame); err != nil {
		return fmt.Errorf("request history at offset %d: %w", offset, err)
	}
	c.cursor.Offset = offset
	if c.state == StateIdle {
		c.state = StateAwaitingInitialHistory
	} else {
		c.state = StateAwaitingMoreHistory
	}
	c.logger.Debug().Int("offset", offset).Int("limit", c.cursor.Limit).Msg("history requested")
	return nil
}

// OnHistory applies a history page of n messages. It returns false when the
// controller is closed and the page must be dropped.
func (c *Controller) OnHistory(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}

	c.cursor.Offset += n
	if n < c.cursor.Limit {
		c.fullyLoaded = true
	}
	c.state = StateReady
	c.metrics.HistoryPage()
	c.logger.Debug().Int("received", n).Int("offset", c.cursor.Offset).Bool("fully_loaded", c.fullyLoaded).Msg("history page applied")
	return true
}

// RequestMoreIfNeeded requests the next page when the viewport reached the
// end of the loaded history. It reports whether a request was sent.
func (c *Controller) RequestMoreIfNeeded(viewportAtEnd bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false, ErrConversationClosed
	}
	if !viewportAtEnd || c.fullyLoaded || c.state != StateReady {
		return false, nil
	}
	if err := c.requestLocked(c.cursor.Offset); err != nil {
		return false, err
	}
	return true, nil
}

// OnChannelLost forgets an outstanding request so it can be issued again on
// the next channel.
func (c *Controller) OnChannelLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// OnRequestFailed forgets an outstanding request whose reply could not be
// read. The same page can then be requested again.
func (c *Controller) OnRequestFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releaseLocked() {
		c.logger.Debug().Int("offset", c.cursor.Offset).Msg("history request released after unreadable reply")
	}
}

func (c *Controller) releaseLocked() bool {
	switch c.state {
	case StateAwaitingInitialHistory:
		c.state = StateIdle
	case StateAwaitingMoreHistory:
		c.state = StateReady
	default:
		return false
	}
	return true
}

// NeedsInitialHistory reports whether the first page was never received.
func (c *Controller) NeedsInitialHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle
}

// MarkAsRead tells the server the peer's messages were read.
func (c *Controller) MarkAsRead() error {
	c.mu.Lock()
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return ErrConversationClosed
	}
	return c.sender.Send(wire.NewReadReceipt(c.peerID))
}

// Loading reports whether a history request is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingInitialHistory || c.state == StateAwaitingMoreHistory
}

// FullyLoaded reports whether a short page was received.
func (c *Controller) FullyLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullyLoaded
}

// Cursor returns the current cursor.
func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close moves the controller to StateClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}
