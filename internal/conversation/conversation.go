// Package conversation binds a timeline, an outbox and a pagination
// controller to a connection manager for one peer.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/outbox"
	"github.com/tOgg1/chatsync/internal/pagination"
	"github.com/tOgg1/chatsync/internal/timeline"
	"github.com/tOgg1/chatsync/internal/wire"
)

// ErrConversationClosed is returned by entry points after Close.
var ErrConversationClosed = pagination.ErrConversationClosed

// Channel is the part of connection.Manager a conversation drives.
type Channel interface {
	Open(ctx context.Context) error
	Send(frame wire.Outbound) error
	AddEventListener(kind events.Kind, handler events.Handler) (events.Listener, error)
	RemoveEventListener(l events.Listener)
	Close() error
}

// Conversation is the client-side state of one conversation. Event delivery
// and UI intents are serialized by an internal lock.
type Conversation struct {
	opts       Options
	channel    Channel
	store      *timeline.Store
	outbox     *outbox.Coordinator
	controller *pagination.Controller
	logger     zerolog.Logger
	foreground atomic.Bool

	mu        sync.Mutex
	closed    bool
	listeners []events.Listener
}

// Open validates opts, subscribes to channel and opens it. The initial
// history request is sent once the channel connects.
func Open(ctx context.Context, channel Channel, opts Options) (*Conversation, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation options: %w", err)
	}
	opts = opts.withDefaults()

	logger := logging.WithConversation(opts.UserID, opts.PeerID)
	if opts.Logger != nil {
		logger = opts.Logger.With().Int64("user_id", opts.UserID).Int64("peer_id", opts.PeerID).Logger()
	}

	storeOpts := []timeline.Option{timeline.WithLocation(opts.Location)}
	if opts.Dedupe {
		storeOpts = append(storeOpts, timeline.WithDeduplication())
	}

	c := &Conversation{
		opts:    opts,
		channel: channel,
		store:   timeline.New(storeOpts...),
		logger:  logger,
	}
	c.foreground.Store(!opts.StartInBackground)
	c.outbox = outbox.New(channel, c.store, c, opts.UserID, opts.PeerID,
		outbox.WithClock(opts.Clock),
		outbox.WithLogger(logger),
		outbox.WithMetrics(opts.Metrics),
	)
	c.controller = pagination.New(channel, opts.PeerID,
		pagination.WithPageLimit(opts.PageLimit),
		pagination.WithLogger(logger),
		pagination.WithMetrics(opts.Metrics),
	)

	handlers := []struct {
		kind    events.Kind
		handler events.Handler
	}{
		{events.KindConnect, c.handleConnect},
		{events.KindReceive, c.handleReceive},
		{events.KindError, c.handleLost},
		{events.KindClose, c.handleLost},
	}
	for _, h := range handlers {
		l, err := channel.AddEventListener(h.kind, h.handler)
		if err != nil {
			c.unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", h.kind, err)
		}
		c.listeners = append(c.listeners, l)
	}

	if err := channel.Open(ctx); err != nil {
		if !errors.Is(err, connection.ErrAlreadyOpen) {
			c.unsubscribe()
			return nil, err
		}
		// No connect event follows for a channel that is already up.
		c.handleConnect(events.Event{Kind: events.KindConnect})
	}
	return c, nil
}

// InForeground implements outbox.Foreground.
func (c *Conversation) InForeground() bool {
	return c.foreground.Load()
}

// SetForeground records whether the application is foregrounded.
func (c *Conversation) SetForeground(on bool) {
	c.foreground.Store(on)
}

func (c *Conversation) handleConnect(evt events.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connectLocked(evt)
	c.mu.Unlock()

	if fn := c.opts.Callbacks.OnConnect; fn != nil {
		fn()
	}
}

func (c *Conversation) connectLocked(evt events.Event) {

	if c.controller.NeedsInitialHistory() {
		if err := c.controller.RequestHistory(); err != nil && !errors.Is(err, pagination.ErrRequestInFlight) {
			c.logger.Warn().Err(err).Msg("initial history request failed")
		}
	}
	if c.opts.MarkReadOnConnect {
		if err := c.controller.MarkAsRead(); err != nil {
			c.logger.Warn().Err(err).Msg("read receipt on connect failed")
		}
	}
	c.logger.Debug().Str("session_id", evt.SessionID).Msg("conversation connected")
}

func (c *Conversation) handleReceive(evt events.Event) {
	var notify func()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if evt.Err != nil {
		c.logger.Warn().Err(evt.Err).Msg("unreadable frame")
		// The unreadable frame may be the awaited history page.
		c.controller.OnRequestFailed()
		notify = c.noticeFunc(NoticeServerError, evt.Err)
	} else {
		notify = c.applyLocked(evt.Frame)
	}
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (c *Conversation) applyLocked(frame wire.Inbound) func() {
	cb := c.opts.Callbacks

	switch frame.Kind {
	case wire.KindHistory:
		if !c.controller.OnHistory(len(frame.History)) {
			return nil
		}
		sections, count := c.store.UpsertHistory(frame.History)
		if cb.OnMessagesLoad == nil {
			return nil
		}
		return func() { cb.OnMessagesLoad(sections, count) }

	case wire.KindMessage:
		msg := frame.Message
		sections := c.store.InsertLive(msg)
		if _, err := c.outbox.OnReadAckRequired(msg.ID); err != nil {
			c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("read acknowledgement failed")
		}
		c.logger.Debug().Str("message_id", msg.ID).Str("text", logging.Preview(msg.Text)).Msg("message received")
		if cb.OnMessageReceive == nil {
			return nil
		}
		return func() { cb.OnMessageReceive(msg, sections) }

	case wire.KindSuccess:
		if frame.IsReadAck() || !c.outbox.OnAck(frame.ID) {
			return nil
		}
		if cb.OnMessageSent == nil {
			return nil
		}
		id := frame.ID
		return func() { cb.OnMessageSent(id) }

	case wire.KindRead:
		if frame.PeerID != 0 && frame.PeerID != c.opts.PeerID {
			return nil
		}
		changed := c.store.MarkRead(c.opts.UserID)
		if changed == 0 || cb.OnMessagesRead == nil {
			return nil
		}
		sections := c.store.ToOrderedSections()
		return func() { cb.OnMessagesRead(changed, sections) }

	default:
		c.logger.Debug().Str("type", frame.Type).Msg("ignoring frame")
		return nil
	}
}

func (c *Conversation) handleLost(evt events.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.controller.OnChannelLost()
	notify := c.noticeFunc(NoticeNetworkError, evt.Err)
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (c *Conversation) noticeFunc(n Notice, err error) func() {
	fn := c.opts.Callbacks.OnNotice
	if fn == nil {
		return nil
	}
	return func() { fn(n, err) }
}

// LoadMessages requests the history page starting at offset.
func (c *Conversation) LoadMessages(offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConversationClosed
	}
	return c.controller.RequestHistoryFrom(offset)
}

// SendMessage sends text to the peer. The returned message is in the
// timeline and pending even when the error is non-nil, unless the text was
// empty.
func (c *Conversation) SendMessage(text string) (models.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Message{}, ErrConversationClosed
	}
	msg, err := c.outbox.SendMessage(text)
	var notify func()
	if err != nil && !errors.Is(err, outbox.ErrEmptyMessage) {
		notify = c.noticeFunc(NoticeSendFailed, err)
	}
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	return msg, err
}

// MarkAsRead sends a read receipt for the peer.
func (c *Conversation) MarkAsRead() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConversationClosed
	}
	return c.controller.MarkAsRead()
}

// RequestMoreIfNeeded asks for the next page when the viewport is at the end.
func (c *Conversation) RequestMoreIfNeeded(viewportAtEnd bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrConversationClosed
	}
	return c.controller.RequestMoreIfNeeded(viewportAtEnd)
}

// Sections returns the timeline, newest day first.
func (c *Conversation) Sections() []models.Section {
	return c.store.ToOrderedSections()
}

// Count returns the number of messages in the timeline.
func (c *Conversation) Count() int {
	return c.store.Count()
}

// IsPending reports whether id awaits acknowledgement.
func (c *Conversation) IsPending(id string) bool {
	return c.outbox.IsPending(id)
}

// Pending returns unacknowledged message ids in send order.
func (c *Conversation) Pending() []string {
	return c.outbox.Pending()
}

// State returns the pagination state.
func (c *Conversation) State() pagination.State {
	return c.controller.State()
}

// Loading reports whether a history page is outstanding.
func (c *Conversation) Loading() bool {
	return c.controller.Loading()
}

// FullyLoaded reports whether the whole history was fetched.
func (c *Conversation) FullyLoaded() bool {
	return c.controller.FullyLoaded()
}

// UserID returns the local user id.
func (c *Conversation) UserID() int64 { return c.opts.UserID }

// PeerID returns the peer's user id.
func (c *Conversation) PeerID() int64 { return c.opts.PeerID }

// Close unsubscribes, drops pending state and closes the channel. Events
// delivered afterwards are ignored.
func (c *Conversation) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribe()
	c.outbox.Clear()
	c.controller.Close()
	c.store.Reset()
	return c.channel.Close()
}

func (c *Conversation) unsubscribe() {
	for _, l := range c.listeners {
		c.channel.RemoveEventListener(l)
	}
	c.listeners = nil
}
