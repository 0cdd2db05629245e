package websocket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/testutil"
	"github.com/tOgg1/chatsync/internal/transport/websocket"
)

func dial(t *testing.T, srv *testutil.ChatServer, opts ...websocket.Option) connection.Channel {
	t.Helper()
	opts = append([]websocket.Option{websocket.WithLogger(logging.Nop())}, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := websocket.NewDialer(srv.URL(), opts...).Dial(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	srv.WaitConnected(5 * time.Second)
	return ch
}

func TestSendAndReceive(t *testing.T) {
	srv := testutil.NewChatServer(t)
	ch := dial(t, srv)

	ctx := context.Background()
	require.NoError(t, ch.Send(ctx, []byte(`{"type":"message","text":"hi","uid":7,"id":"abc"}`)))
	require.JSONEq(t, `{"type":"message","text":"hi","uid":7,"id":"abc"}`, srv.Expect(5*time.Second))

	reply, err := ch.Receive(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"success","id":"abc"}`, string(reply))
}

func TestServerCloseIsClean(t *testing.T) {
	srv := testutil.NewChatServer(t)
	ch := dial(t, srv)

	srv.DropConnections()
	_, err := ch.Receive(context.Background())
	require.ErrorIs(t, err, connection.ErrTransportClosed)
	require.True(t, connection.IsCleanClose(err))
}

func TestReceiveHonoursCancelledContext(t *testing.T) {
	srv := testutil.NewChatServer(t)
	ch := dial(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ch.Receive(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := websocket.NewDialer("ws://127.0.0.1:1/chat",
		websocket.WithLogger(logging.Nop()),
		websocket.WithDialTimeout(time.Second),
	).Dial(ctx)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := testutil.NewChatServer(t)
	ch := dial(t, srv, websocket.WithPingInterval(20*time.Millisecond))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
}
