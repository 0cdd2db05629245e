package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tOgg1/chatsync/internal/connection"
)

// ErrPipeClosed is returned by a pipe after its client side was closed.
var ErrPipeClosed = errors.New("pipe closed")

// Pipe is an in-memory message channel. The client half (Receive, Send,
// Close) is driven by the code under test; the server half (Push,
// CloseRemote, Fail, Expect) is driven by the test.
type Pipe struct {
	toClient   chan []byte
	fromClient chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu         sync.Mutex
	remoteOnce sync.Once
	remoteErr  error
	remoteDone chan struct{}
	writeErr   error
}

// NewPipe returns an open pipe.
func NewPipe() *Pipe {
	return &Pipe{
		toClient:   make(chan []byte, 256),
		fromClient: make(chan []byte, 256),
		closed:     make(chan struct{}),
		remoteDone: make(chan struct{}),
	}
}

// Receive returns the next pushed payload. Payloads pushed before a remote
// close are delivered before the close is reported.
func (p *Pipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.toClient:
		return data, nil
	default:
	}
	select {
	case data := <-p.toClient:
		return data, nil
	case <-p.remoteDone:
		select {
		case data := <-p.toClient:
			return data, nil
		default:
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return nil, p.remoteErr
	case <-p.closed:
		return nil, ErrPipeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send records a payload for the server half.
func (p *Pipe) Send(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	err := p.writeErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrPipeClosed
	default:
	}
	select {
	case p.fromClient <- append([]byte(nil), payload...):
		return nil
	case <-p.closed:
		return ErrPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the client half.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// IsClosed reports whether the client half was closed.
func (p *Pipe) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Push queues a payload for the client.
func (p *Pipe) Push(payload string) {
	p.toClient <- []byte(payload)
}

// CloseRemote ends the pipe as if the server closed it cleanly.
func (p *Pipe) CloseRemote() {
	p.Fail(io.EOF)
}

// Fail ends the pipe with err as seen by Receive.
func (p *Pipe) Fail(err error) {
	p.remoteOnce.Do(func() {
		p.mu.Lock()
		p.remoteErr = err
		p.mu.Unlock()
		close(p.remoteDone)
	})
}

// FailWrites makes every later Send return err.
func (p *Pipe) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// Expect waits for the next payload sent by the client.
func (p *Pipe) Expect(t testing.TB, timeout time.Duration) string {
	t.Helper()
	select {
	case data := <-p.fromClient:
		return string(data)
	case <-time.After(timeout):
		t.Fatalf("no frame sent within %s", timeout)
		return ""
	}
}

// ExpectNone asserts the client sends nothing for d.
func (p *Pipe) ExpectNone(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case data := <-p.fromClient:
		t.Fatalf("unexpected frame sent: %s", data)
	case <-time.After(d):
	}
}

// PipeDialer hands out pipes, one per Dial.
type PipeDialer struct {
	mu      sync.Mutex
	pipes   []*Pipe
	err     error
	dialed  chan *Pipe
	pending []*Pipe
}

// NewPipeDialer returns a dialer that creates a fresh pipe per Dial.
func NewPipeDialer() *PipeDialer {
	return &PipeDialer{dialed: make(chan *Pipe, 64)}
}

// Queue makes the next Dial return p instead of a fresh pipe.
func (d *PipeDialer) Queue(p *Pipe) {
	d.mu.Lock()
	d.pending = append(d.pending, p)
	d.mu.Unlock()
}

// SetError makes Dial fail with err until cleared with nil.
func (d *PipeDialer) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// DialPipe returns the next pipe. Callers adapt it to their dialer interface.
func (d *PipeDialer) DialPipe(ctx context.Context) (*Pipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	var p *Pipe
	if len(d.pending) > 0 {
		p = d.pending[0]
		d.pending = d.pending[1:]
	} else {
		p = NewPipe()
	}
	d.pipes = append(d.pipes, p)
	d.mu.Unlock()
	d.dialed <- p
	return p, nil
}

// Dial implements connection.Dialer.
func (d *PipeDialer) Dial(ctx context.Context) (connection.Channel, error) {
	p, err := d.DialPipe(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Dials returns how many pipes were handed out.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipes)
}

// Last returns the most recently dialed pipe, or nil.
func (d *PipeDialer) Last() *Pipe {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pipes) == 0 {
		return nil
	}
	return d.pipes[len(d.pipes)-1]
}

// WaitDial waits for the next Dial and returns its pipe.
func (d *PipeDialer) WaitDial(t testing.TB, timeout time.Duration) *Pipe {
	t.Helper()
	select {
	case p := <-d.dialed:
		return p
	case <-time.After(timeout):
		t.Fatalf("no dial within %s", timeout)
		return nil
	}
}
