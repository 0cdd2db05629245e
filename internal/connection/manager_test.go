package connection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/testutil"
	"github.com/tOgg1/chatsync/internal/wire"
)

const waitTimeout = 2 * time.Second

type recorder struct {
	ch chan events.Event
}

func record(t *testing.T, m *connection.Manager) *recorder {
	t.Helper()
	r := &recorder{ch: make(chan events.Event, 64)}
	for _, kind := range events.Kinds {
		_, err := m.AddEventListener(kind, func(evt events.Event) { r.ch <- evt })
		require.NoError(t, err)
	}
	return r
}

func (r *recorder) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case evt := <-r.ch:
		return evt
	case <-time.After(waitTimeout):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case evt := <-r.ch:
		t.Fatalf("unexpected %s event: %v", evt.Kind, evt.Err)
	case <-time.After(d):
	}
}

func newManager(t *testing.T, opts ...connection.Option) (*connection.Manager, *testutil.PipeDialer) {
	t.Helper()
	dialer := testutil.NewPipeDialer()
	opts = append([]connection.Option{connection.WithLogger(logging.Nop())}, opts...)
	m := connection.NewManager(dialer, opts...)
	t.Cleanup(func() {
		_ = m.Close()
		m.Wait()
	})
	return m, dialer
}

func TestOpenPublishesConnectThenFramesInOrder(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	pipe := dialer.Last()
	pipe.Push(`{"type":"message","id":"a","uid":7,"text":"one","timestamp":1700000000000}`)
	pipe.Push(`{"type":"message","id":"b","uid":7,"text":"two","timestamp":1700000001000}`)
	pipe.Push(`{"type":"success","id":"c"}`)

	connect := rec.next(t)
	require.Equal(t, events.KindConnect, connect.Kind)
	require.NotEmpty(t, connect.SessionID)
	require.Equal(t, m.SessionID(), connect.SessionID)

	first := rec.next(t)
	require.Equal(t, events.KindReceive, first.Kind)
	require.Equal(t, "a", first.Frame.Message.ID)
	require.Equal(t, "b", rec.next(t).Frame.Message.ID)

	ack := rec.next(t)
	require.Equal(t, wire.KindSuccess, ack.Frame.Kind)
	require.Equal(t, "c", ack.Frame.ID)
	require.True(t, m.IsOpen())
}

func TestMalformedFrameIsReportedAndReadingContinues(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	pipe := dialer.Last()
	pipe.Push(`not json`)
	pipe.Push(`{"type":"success","id":"x"}`)

	require.Equal(t, events.KindConnect, rec.next(t).Kind)
	bad := rec.next(t)
	require.Equal(t, events.KindReceive, bad.Kind)
	require.ErrorIs(t, bad.Err, wire.ErrMalformedFrame)

	good := rec.next(t)
	require.NoError(t, good.Err)
	require.Equal(t, "x", good.Frame.ID)
}

func TestRemoteCloseIsPublishedOnce(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, events.KindConnect, rec.next(t).Kind)

	dialer.Last().CloseRemote()
	evt := rec.next(t)
	require.Equal(t, events.KindClose, evt.Kind)
	require.ErrorIs(t, evt.Err, connection.ErrTransportClosed)
	rec.none(t, 50*time.Millisecond)

	require.Eventually(t, func() bool { return !m.IsOpen() }, waitTimeout, 5*time.Millisecond)
	require.ErrorIs(t, m.Send(wire.Ack{ID: "1"}), connection.ErrChannelClosed)
}

func TestRemoteFailureIsPublishedAsError(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, events.KindConnect, rec.next(t).Kind)

	boom := errors.New("connection reset")
	dialer.Last().Fail(boom)
	evt := rec.next(t)
	require.Equal(t, events.KindError, evt.Kind)
	require.ErrorIs(t, evt.Err, connection.ErrTransport)
	require.ErrorIs(t, evt.Err, boom)
	rec.none(t, 50*time.Millisecond)
}

func TestWriteFailureIsPublishedAsError(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, events.KindConnect, rec.next(t).Kind)

	boom := errors.New("broken pipe")
	dialer.Last().FailWrites(boom)
	require.NoError(t, m.Send(wire.Ack{ID: "1"}))

	evt := rec.next(t)
	require.Equal(t, events.KindError, evt.Kind)
	require.ErrorIs(t, evt.Err, boom)
	rec.none(t, 50*time.Millisecond)
	require.Eventually(t, func() bool { return !m.IsOpen() }, waitTimeout, 5*time.Millisecond)
}

func TestSendRequiresOpenChannel(t *testing.T) {
	m, dialer := newManager(t)

	require.ErrorIs(t, m.Send(wire.Ack{ID: "1"}), connection.ErrChannelClosed)

	require.NoError(t, m.Open(context.Background()))
	require.NoError(t, m.Send(wire.HistoryRequest{UID: 7, Offset: 0, Limit: 30}))
	require.JSONEq(t, `{"type":"history","uid":7,"offset":0,"limit":30}`, dialer.Last().Expect(t, waitTimeout))
}

func TestFlushWaitsForQueuedFrames(t *testing.T) {
	m, dialer := newManager(t)

	require.ErrorIs(t, m.Flush(context.Background()), connection.ErrChannelClosed)

	require.NoError(t, m.Open(context.Background()))
	require.NoError(t, m.Send(wire.OutgoingMessage{Text: "hi", UID: 2, ID: "1"}))
	require.NoError(t, m.Send(wire.Ack{ID: "2"}))
	require.NoError(t, m.Flush(context.Background()))

	pipe := dialer.Last()
	require.JSONEq(t, `{"type":"message","text":"hi","uid":2,"id":"1"}`, pipe.Expect(t, waitTimeout))
	require.JSONEq(t, `{"type":"success","id":"2"}`, pipe.Expect(t, waitTimeout))
}

func TestOpenTwiceFails(t *testing.T) {
	m, _ := newManager(t)

	require.NoError(t, m.Open(context.Background()))
	require.ErrorIs(t, m.Open(context.Background()), connection.ErrAlreadyOpen)
}

func TestDialFailure(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	refused := errors.New("connection refused")
	dialer.SetError(refused)
	err := m.Open(context.Background())
	require.ErrorIs(t, err, connection.ErrTransport)
	require.ErrorIs(t, err, refused)
	require.False(t, m.IsOpen())
	rec.none(t, 50*time.Millisecond)

	dialer.SetError(nil)
	require.NoError(t, m.Open(context.Background()))
}

func TestDisconnectIsSilentAndReopenable(t *testing.T) {
	m, dialer := newManager(t)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	first := rec.next(t)
	pipe := dialer.Last()

	m.Disconnect()
	require.True(t, pipe.IsClosed())
	require.False(t, m.IsOpen())
	rec.none(t, 50*time.Millisecond)

	require.NoError(t, m.Open(context.Background()))
	second := rec.next(t)
	require.Equal(t, events.KindConnect, second.Kind)
	require.NotEqual(t, first.SessionID, second.SessionID)
	require.Equal(t, 2, dialer.Dials())
}

func TestCloseIsTerminal(t *testing.T) {
	m, _ := newManager(t)

	require.NoError(t, m.Open(context.Background()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.True(t, m.Closed())
	require.ErrorIs(t, m.Open(context.Background()), connection.ErrManagerClosed)
	require.ErrorIs(t, m.Send(wire.Ack{ID: "1"}), connection.ErrChannelClosed)
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	m, dialer := newManager(t)

	got := make(chan events.Event, 8)
	l, err := m.AddEventListener(events.KindReceive, func(evt events.Event) { got <- evt })
	require.NoError(t, err)
	rec := record(t, m)

	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, events.KindConnect, rec.next(t).Kind)
	m.RemoveEventListener(l)
	m.RemoveEventListener(l)

	dialer.Last().Push(`{"type":"success","id":"x"}`)
	require.Equal(t, events.KindReceive, rec.next(t).Kind)
	require.Empty(t, got)
}

func TestListenerRejectsUnknownKind(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddEventListener(events.Kind("bogus"), func(events.Event) {})
	require.ErrorIs(t, err, events.ErrUnknownKind)
}

// stalledChannel blocks every Send until its context ends.
type stalledChannel struct {
	writing chan struct{}
	closed  chan struct{}
}

func (c *stalledChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, testutil.ErrPipeClosed
	}
}

func (c *stalledChannel) Send(ctx context.Context, _ []byte) error {
	c.writing <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func (c *stalledChannel) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func TestSendFailsFastWhenBufferIsFull(t *testing.T) {
	ch := &stalledChannel{writing: make(chan struct{}, 1), closed: make(chan struct{})}
	dialer := connection.DialerFunc(func(context.Context) (connection.Channel, error) { return ch, nil })
	m := connection.NewManager(dialer,
		connection.WithLogger(logging.Nop()),
		connection.WithSendBuffer(1),
		connection.WithWriteTimeout(time.Hour),
	)
	defer func() {
		_ = m.Close()
		m.Wait()
	}()

	require.NoError(t, m.Open(context.Background()))
	require.NoError(t, m.Send(wire.Ack{ID: "1"}))
	select {
	case <-ch.writing:
	case <-time.After(waitTimeout):
		t.Fatal("writer never started")
	}
	require.NoError(t, m.Send(wire.Ack{ID: "2"}))
	require.ErrorIs(t, m.Send(wire.Ack{ID: "3"}), connection.ErrSendBufferFull)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Flush(ctx), context.DeadlineExceeded)
}
