package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/wire"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultSendBuffer   = 64
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics instruments the manager.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithWriteTimeout bounds each channel write.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// WithSendBuffer sets how many frames may wait for the writer.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// WithClock overrides the time source used to stamp received frames.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns at most one open channel at a time. Events for a channel are
// published from a single goroutine in the order frames arrive.
type Manager struct {
	dialer       Dialer
	bus          *events.Bus
	logger       zerolog.Logger
	metrics      *metrics.Collector
	writeTimeout time.Duration
	sendBuffer   int
	now          func() time.Time

	mu      sync.Mutex
	session *session
	opening bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type outbound struct {
	frameType string
	data      []byte
	// flushed, when set, marks a Flush point instead of a frame.
	flushed chan struct{}
}

// session is the state of one channel lifetime.
type session struct {
	id     string
	ch     Channel
	ctx    context.Context
	cancel context.CancelFunc
	out    chan outbound

	mu    sync.Mutex
	local bool
	cause error
}

// fail records the first write failure and closes the channel so the read
// loop observes it.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.mu.Unlock()
	_ = s.ch.Close()
}

func (s *session) stop() {
	s.mu.Lock()
	s.local = true
	s.mu.Unlock()
	s.cancel()
	_ = s.ch.Close()
}

func (s *session) outcome(readErr error) (local bool, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return s.local, s.cause
	}
	return s.local, readErr
}

// NewManager creates a manager that opens channels through dialer.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:       dialer,
		bus:          events.NewBus(),
		logger:       logging.Component("connection"),
		writeTimeout: defaultWriteTimeout,
		sendBuffer:   defaultSendBuffer,
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddEventListener registers handler for kind.
func (m *Manager) AddEventListener(kind events.Kind, handler events.Handler) (events.Listener, error) {
	return m.bus.Subscribe(kind, handler)
}

// RemoveEventListener unregisters a listener. Unknown listeners are ignored.
func (m *Manager) RemoveEventListener(l events.Listener) {
	m.bus.Unsubscribe(l)
}

// Open dials a channel and starts delivering its events. The connect event
// is published asynchronously, before any receive event.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrManagerClosed
	case m.session != nil || m.opening:
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.opening = true
	m.mu.Unlock()

	ch, err := m.dialer.Dial(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opening = false
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	if m.closed {
		_ = ch.Close()
		return ErrManagerClosed
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		ch:     ch,
		ctx:    sctx,
		cancel: cancel,
		out:    make(chan outbound, m.sendBuffer),
	}
	m.session = s

	m.wg.Add(2)
	go m.readLoop(s)
	go m.writeLoop(s)
	return nil
}

// Send serializes frame and queues it for the writer. It fails with
// ErrChannelClosed when no channel is open; frames are never held for a
// future channel.
func (m *Manager) Send(frame wire.Outbound) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil || s.ctx.Err() != nil {
		m.metrics.FrameSent(frameType(frame), ErrChannelClosed)
		return ErrChannelClosed
	}

	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}

	select {
	case <-s.ctx.Done():
		m.metrics.FrameSent(frame.FrameType(), ErrChannelClosed)
		return ErrChannelClosed
	default:
	}
	select {
	case s.out <- outbound{frameType: frame.FrameType(), data: data}:
		return nil
	default:
		m.metrics.FrameSent(frame.FrameType(), ErrSendBufferFull)
		return ErrSendBufferFull
	}
}

// Flush blocks until every frame queued before the call has been written to
// the live channel. It fails with ErrChannelClosed when the channel closes
// first.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return ErrChannelClosed
	}

	marker := outbound{flushed: make(chan struct{})}
	select {
	case s.out <- marker:
	case <-s.ctx.Done():
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-marker.flushed:
		return nil
	case <-s.ctx.Done():
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsOpen reports whether a channel is live.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// SessionID returns the id of the live channel, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.id
}

// Disconnect closes the live channel without publishing close or error.
// The manager can be opened again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// Close disconnects, drops every listener and rejects further Opens.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.Disconnect()
	m.bus.Close()
	return nil
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Done is closed by Close.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the goroutines of every channel opened so far exit.
// It must not be called from an event handler.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) readLoop(s *session) {
	defer m.wg.Done()
	logger := logging.WithSession(m.logger, s.id)

	m.metrics.TransportEvent(string(events.KindConnect))
	logger.Debug().Msg("channel open")
	m.bus.Publish(events.Event{Kind: events.KindConnect, SessionID: s.id, At: m.now()})

	for {
		payload, err := s.ch.Receive(s.ctx)
		if err != nil {
			m.finish(s, logger, err)
			return
		}

		receivedAt := m.now()
		frame, err := wire.Decode(payload, receivedAt)
		if err != nil {
			m.metrics.MalformedFrame()
			logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed frame")
			m.bus.Publish(events.Event{Kind: events.KindReceive, SessionID: s.id, Err: err, At: receivedAt})
			continue
		}

		m.metrics.FrameReceived(frame.Type)
		logger.Debug().Str("type", frame.Type).Msg("frame received")
		m.bus.Publish(events.Event{Kind: events.KindReceive, SessionID: s.id, Frame: frame, At: receivedAt})
	}
}

// finish tears the session down and publishes exactly one close or error
// event unless the close was requested locally.
func (m *Manager) finish(s *session, logger zerolog.Logger, readErr error) {
	s.cancel()
	_ = s.ch.Close()

	m.mu.Lock()
	if m.session == s {
		m.session = nil
	}
	m.mu.Unlock()

	local, cause := s.outcome(readErr)
	if local {
		logger.Debug().Msg("channel closed locally")
		return
	}

	evt := events.Event{SessionID: s.id, At: m.now()}
	if IsCleanClose(cause) {
		evt.Kind = events.KindClose
		evt.Err = fmt.Errorf("%w: %w", ErrTransportClosed, cause)
		logger.Info().Msg("channel closed by server")
	} else {
		evt.Kind = events.KindError
		evt.Err = fmt.Errorf("%w: %w", ErrTransport, cause)
		logger.Warn().Err(cause).Msg("channel failed")
	}
	m.metrics.TransportEvent(string(evt.Kind))
	m.bus.Publish(evt)
}

func (m *Manager) writeLoop(s *session) {
	defer m.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.out:
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			ctx, cancel := context.WithTimeout(s.ctx, m.writeTimeout)
			err := s.ch.Send(ctx, item.data)
			cancel()
			m.metrics.FrameSent(item.frameType, err)
			if err != nil {
				if s.ctx.Err() == nil {
					s.fail(err)
				}
				return
			}
		}
	}
}

func frameType(frame wire.Outbound) string {
	if frame == nil {
		return "unknown"
	}
	return frame.FrameType()
}
