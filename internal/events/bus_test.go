package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBus_HandlersRunInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		if _, err := bus.Subscribe(KindReceive, func(Event) { order = append(order, i) }); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	bus.Publish(Event{Kind: KindReceive})

	for i, got := range order {
		if got != i {
			t.Fatalf("handler order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 invocations, got %d", len(order))
	}
}

func TestBus_PublishOnlyMatchingKind(t *testing.T) {
	bus := NewBus()
	var connects, closes int
	_, _ = bus.Subscribe(KindConnect, func(Event) { connects++ })
	_, _ = bus.Subscribe(KindClose, func(Event) { closes++ })

	bus.Publish(Event{Kind: KindConnect})
	bus.Publish(Event{Kind: KindConnect})
	bus.Publish(Event{Kind: KindError})

	if connects != 2 || closes != 0 {
		t.Fatalf("connects=%d closes=%d", connects, closes)
	}
}

func TestBus_PublishStampsTime(t *testing.T) {
	bus := NewBus()
	var got Event
	_, _ = bus.Subscribe(KindError, func(evt Event) { got = evt })
	bus.Publish(Event{Kind: KindError, Err: errors.New("boom")})
	if got.At.IsZero() {
		t.Fatal("expected At to be set")
	}
}

func TestBus_UnsubscribeRemovesOnlyThatRegistration(t *testing.T) {
	bus := NewBus()
	var calls []string
	handler := func(evt Event) { calls = append(calls, "shared") }

	first, _ := bus.Subscribe(KindReceive, handler)
	_, _ = bus.Subscribe(KindReceive, handler)
	_, _ = bus.Subscribe(KindReceive, func(Event) { calls = append(calls, "other") })

	bus.Unsubscribe(first)
	bus.Publish(Event{Kind: KindReceive})

	if len(calls) != 2 || calls[0] != "shared" || calls[1] != "other" {
		t.Fatalf("unexpected calls %v", calls)
	}
	if n := bus.SubscriberCount(KindReceive); n != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", n)
	}
}

func TestBus_UnsubscribeUnknownIsNoop(t *testing.T) {
	bus := NewBus()
	l, _ := bus.Subscribe(KindClose, func(Event) {})

	bus.Unsubscribe(l)
	bus.Unsubscribe(l)
	bus.Unsubscribe(Listener{})

	if n := bus.SubscriberCount(KindClose); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestBus_SubscribeErrors(t *testing.T) {
	bus := NewBus()
	if _, err := bus.Subscribe("bogus", func(Event) {}); err != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := bus.Subscribe(KindConnect, nil); err != ErrNilHandler {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

func TestBus_HandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	var self Listener
	var calls int
	self, _ = bus.Subscribe(KindReceive, func(Event) {
		calls++
		bus.Unsubscribe(self)
	})

	bus.Publish(Event{Kind: KindReceive})
	bus.Publish(Event{Kind: KindReceive})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	var count int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, _ := bus.Subscribe(KindReceive, func(Event) { atomic.AddInt64(&count, 1) })
			bus.Publish(Event{Kind: KindReceive})
			bus.Unsubscribe(l)
		}()
	}
	wg.Wait()

	if atomic.LoadInt64(&count) == 0 {
		t.Fatal("expected at least one delivery")
	}
	if n := bus.SubscriberCount(KindReceive); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	for _, kind := range Kinds {
		_, _ = bus.Subscribe(kind, func(Event) {})
	}
	bus.Close()
	for _, kind := range Kinds {
		if n := bus.SubscriberCount(kind); n != 0 {
			t.Fatalf("%s: SubscriberCount = %d after Close", kind, n)
		}
	}
}
