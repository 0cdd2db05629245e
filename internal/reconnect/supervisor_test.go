package reconnect_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/reconnect"
	"github.com/tOgg1/chatsync/internal/testutil"
)

const waitTimeout = 2 * time.Second

func newManager(t *testing.T) (*connection.Manager, *testutil.PipeDialer) {
	t.Helper()
	dialer := testutil.NewPipeDialer()
	m := connection.NewManager(dialer, connection.WithLogger(logging.Nop()))
	t.Cleanup(func() {
		_ = m.Close()
		m.Wait()
	})
	return m, dialer
}

func runAsync(ctx context.Context, s *reconnect.Supervisor) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("supervisor did not stop")
		return nil
	}
}

func TestReopensAfterRemoteClose(t *testing.T) {
	m, dialer := newManager(t)
	require.NoError(t, m.Open(context.Background()))
	first := dialer.WaitDial(t, waitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := reconnect.New(m, reconnect.WithLogger(logging.Nop()), reconnect.WithInterval(time.Millisecond))
	done := runAsync(ctx, s)

	// Give Run a moment to subscribe before the outage.
	time.Sleep(20 * time.Millisecond)
	first.CloseRemote()

	second := dialer.WaitDial(t, waitTimeout)
	require.NotSame(t, first, second)
	require.Eventually(t, m.IsOpen, waitTimeout, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, waitRun(t, done), context.Canceled)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	m, dialer := newManager(t)
	require.NoError(t, m.Open(context.Background()))
	pipe := dialer.WaitDial(t, waitTimeout)

	var mu sync.Mutex
	var attempts []int
	var failures int
	s := reconnect.New(m,
		reconnect.WithLogger(logging.Nop()),
		reconnect.WithInterval(time.Millisecond),
		reconnect.WithMaxAttempts(3),
		reconnect.WithAttemptHook(func(n int, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
			}
			attempts = append(attempts, n)
		}),
	)
	done := runAsync(context.Background(), s)
	time.Sleep(20 * time.Millisecond)

	refused := errors.New("connection refused")
	dialer.SetError(refused)
	pipe.Fail(errors.New("reset"))

	err := waitRun(t, done)
	require.ErrorIs(t, err, reconnect.ErrAttemptsExhausted)
	require.ErrorIs(t, err, refused)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, attempts)
	require.Equal(t, 3, failures)
}

func TestStopsWhenManagerCloses(t *testing.T) {
	m, _ := newManager(t)
	s := reconnect.New(m, reconnect.WithLogger(logging.Nop()))
	done := runAsync(context.Background(), s)

	require.NoError(t, m.Close())
	require.NoError(t, waitRun(t, done))
}

func TestLocalDisconnectDoesNotReconnect(t *testing.T) {
	m, dialer := newManager(t)
	require.NoError(t, m.Open(context.Background()))
	dialer.WaitDial(t, waitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, reconnect.New(m, reconnect.WithLogger(logging.Nop()), reconnect.WithInterval(time.Millisecond)))
	time.Sleep(20 * time.Millisecond)

	m.Disconnect()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, dialer.Dials())
	require.False(t, m.IsOpen())

	cancel()
	require.ErrorIs(t, waitRun(t, done), context.Canceled)
}
