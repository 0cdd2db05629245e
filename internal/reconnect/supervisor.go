// Package reconnect reopens a connection manager after the transport drops.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 5
)

// ErrAttemptsExhausted is returned by Run when every attempt failed.
var ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")

// Target is the part of connection.Manager the supervisor drives.
type Target interface {
	Open(ctx context.Context) error
	AddEventListener(kind events.Kind, handler events.Handler) (events.Listener, error)
	RemoveEventListener(l events.Listener)
	Done() <-chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterval sets the minimum spacing between attempts.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAttempts bounds consecutive failed attempts per outage.
func WithMaxAttempts(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithMetrics counts attempts.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithAttemptHook is called after every attempt.
func WithAttemptHook(fn func(attempt int, err error)) Option {
	return func(s *Supervisor) { s.onAttempt = fn }
}

// Supervisor reopens its target after error and close events, spacing
// attempts with a token bucket.
type Supervisor struct {
	target      Target
	interval    time.Duration
	maxAttempts int
	logger      zerolog.Logger
	metrics     *metrics.Collector
	onAttempt   func(attempt int, err error)

	lost chan struct{}
}

// New creates a supervisor for target.
func New(target Target, opts ...Option) *Supervisor {
	s := &Supervisor{
		target:      target,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      logging.Component("reconnect"),
		lost:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run watches the target until ctx ends, the target is closed, or an outage
// outlasts the attempt budget.
func (s *Supervisor) Run(ctx context.Context) error {
	var listeners []events.Listener
	for _, kind := range []events.Kind{events.KindError, events.KindClose} {
		l, err := s.target.AddEventListener(kind, s.onLost)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		listeners = append(listeners, l)
	}
	defer func() {
		for _, l := range listeners {
			s.target.RemoveEventListener(l)
		}
	}()

	// The first attempt of an outage is not delayed.
	limiter := rate.NewLimiter(rate.Every(s.interval), 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.target.Done():
			return nil
		case <-s.lost:
			if err := s.reconnect(ctx, limiter); err != nil {
				if errors.Is(err, connection.ErrManagerClosed) {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Supervisor) onLost(evt events.Event) {
	s.logger.Info().Err(evt.Err).Str("event", string(evt.Kind)).Msg("channel lost")
	select {
	case s.lost <- struct{}{}:
	default:
	}
}

func (s *Supervisor) reconnect(ctx context.Context, limiter *rate.Limiter) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		select {
		case <-s.target.Done():
			return connection.ErrManagerClosed
		default:
		}

		err := s.target.Open(ctx)
		if errors.Is(err, connection.ErrAlreadyOpen) {
			err = nil
		}
		s.metrics.ReconnectAttempt(err)
		if s.onAttempt != nil {
			s.onAttempt(attempt, err)
		}
		if err == nil {
			s.logger.Info().Int("attempt", attempt).Msg("reconnected")
			return nil
		}
		if errors.Is(err, connection.ErrManagerClosed) {
			return err
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.maxAttempts).Msg("reconnect failed")
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, s.maxAttempts, lastErr)
}
