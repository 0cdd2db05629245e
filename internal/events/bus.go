// Package events provides the ordered publish/subscribe bus a connection uses
// to report channel activity.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/chatsync/internal/wire"
)

// Kind names one of the four channel event streams.
type Kind string

const (
	KindConnect Kind = "connect"
	KindReceive Kind = "receive"
	KindError   Kind = "error"
	KindClose   Kind = "close"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{KindConnect, KindReceive, KindError, KindClose}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConnect, KindReceive, KindError, KindClose:
		return true
	}
	return false
}

// Event is one occurrence on the channel. Frame is set for receive events
// that decoded; Err is set for malformed receives and transport failures.
type Event struct {
	Kind      Kind
	SessionID string
	Frame     wire.Inbound
	Err       error
	At        time.Time
}

// Handler is invoked for each published event of the kind it registered for.
type Handler func(Event)

// Listener identifies a registration returned by Subscribe.
type Listener struct {
	id   string
	kind Kind
}

// Kind returns the event kind the listener is registered for.
func (l Listener) Kind() Kind { return l.kind }

// IsZero reports whether l is the zero Listener.
func (l Listener) IsZero() bool { return l.id == "" }

type subscription struct {
	id      string
	handler Handler
}

// Bus delivers events to handlers in registration order. Publish invokes
// handlers synchronously on the caller's goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers handler for kind. The same function may be registered
// more than once; each registration gets its own Listener.
func (b *Bus) Subscribe(kind Kind, handler Handler) (Listener, error) {
	if !kind.Valid() {
		return Listener{}, ErrUnknownKind
	}
	if handler == nil {
		return Listener{}, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: uuid.NewString(), handler: handler}
	b.subs[kind] = append(b.subs[kind], sub)
	return Listener{id: sub.id, kind: kind}, nil
}

// Unsubscribe removes a registration. Unknown listeners are ignored.
func (b *Bus) Unsubscribe(l Listener) {
	if l.IsZero() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[l.kind]
	for i, sub := range subs {
		if sub.id != l.id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		b.subs[l.kind] = next
		return
	}
}

// Publish delivers evt to every handler registered for evt.Kind.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	subs := b.subs[evt.Kind]
	b.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or unsubscribe.
	for _, sub := range subs {
		sub.handler(evt)
	}
}

// SubscriberCount returns the number of handlers registered for kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Close removes all registrations.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Kind][]subscription)
}

// Errors for bus operations.
var (
	ErrUnknownKind = &BusError{Message: "unknown event kind"}
	ErrNilHandler  = &BusError{Message: "handler cannot be nil"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}
