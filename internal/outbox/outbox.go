// Package outbox tracks locally originated messages until the server
// acknowledges them and answers incoming messages with read receipts.
package outbox

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/wire"
)

// ErrEmptyMessage is returned for text that is empty after trimming.
var ErrEmptyMessage = errors.New("message text is empty")

// Sender transmits outbound frames.
type Sender interface {
	Send(frame wire.Outbound) error
}

// Timeline receives locally sent messages.
type Timeline interface {
	InsertLive(msg models.Message) []models.Section
}

// Foreground reports whether the application is in the foreground.
type Foreground interface {
	InForeground() bool
}

// ForegroundFunc adapts a function to Foreground.
type ForegroundFunc func() bool

// InForeground calls f.
func (f ForegroundFunc) InForeground() bool { return f() }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source for message ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics reports the pending set size.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator owns the pending set of one conversation.
type Coordinator struct {
	sender     Sender
	timeline   Timeline
	foreground Foreground
	selfID     int64
	peerID     int64
	now        func() time.Time
	logger     zerolog.Logger
	metrics    *metrics.Collector

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
}

// New creates a coordinator for the conversation between selfID and peerID.
// A nil foreground is treated as always foregrounded.
func New(sender Sender, timeline Timeline, foreground Foreground, selfID, peerID int64, opts ...Option) *Coordinator {
	if foreground == nil {
		foreground = ForegroundFunc(func() bool { return true })
	}
	c := &Coordinator{
		sender:     sender,
		timeline:   timeline,
		foreground: foreground,
		selfID:     selfID,
		peerID:     peerID,
		now:        time.Now,
		logger:     logging.Component("outbox"),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage transmits text, inserts it into the timeline and marks it
// pending. When the transmit fails the message is still inserted and stays
// pending; the error is returned alongside it.
func (c *Coordinator) SendMessage(text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}

	sentAt := c.now()
	msg := models.Message{
		ID:        models.LocalMessageID(c.selfID, c.peerID, sentAt),
		SenderID:  c.selfID,
		Text:      text,
		Timestamp: sentAt,
		IsRead:    false,
	}

	err := c.sender.Send(wire.OutgoingMessage{Text: text, UID: c.peerID, ID: msg.ID})
	if err != nil {
		c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message not transmitted")
	} else {
		c.logger.Debug().Str("message_id", msg.ID).Str("text", logging.Preview(text)).Msg("message sent")
	}

	c.timeline.InsertLive(msg)

	c.mu.Lock()
	if _, ok := c.pending[msg.ID]; !ok {
		c.pending[msg.ID] = struct{}{}
		c.order = append(c.order, msg.ID)
	}
	n := len(c.pending)
	c.mu.Unlock()
	c.metrics.SetPending(n)

	return msg, err
}

// OnAck reconciles a success frame. It reports whether id was pending;
// unknown ids and read-receipt acks are ignored.
func (c *Coordinator) OnAck(id string) bool {
	if models.IsReadAck(id) {
		return false
	}

	c.mu.Lock()
	if _, ok := c.pending[id]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, id)
	for i, pid := range c.order {
		if pid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	n := len(c.pending)
	c.mu.Unlock()

	c.metrics.SetPending(n)
	c.logger.Debug().Str("message_id", id).Msg("message acknowledged")
	return true
}

// OnReadAckRequired acknowledges an incoming message and sends a read
// receipt for the peer. It does nothing while backgrounded and reports
// whether the frames were sent.
func (c *Coordinator) OnReadAckRequired(messageID string) (bool, error) {
	if !c.foreground.InForeground() {
		return false, nil
	}
	if err := c.sender.Send(wire.Ack{ID: messageID}); err != nil {
		return false, err
	}
	if err := c.sender.Send(wire.NewReadReceipt(c.peerID)); err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns the unacknowledged ids in send order.
func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// IsPending reports whether id awaits acknowledgement.
func (c *Coordinator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Clear drops every pending id.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.pending = make(map[string]struct{})
	c.order = nil
	c.mu.Unlock()
	c.metrics.SetPending(0)
}
