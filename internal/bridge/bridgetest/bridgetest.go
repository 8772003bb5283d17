// Package bridgetest provides in-memory Conn and Terminal implementations for
// exercising a bridge without a network or a real PTY.
package bridgetest

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/pty"
)

// Conn is an in-memory bridge.Conn. Frames queued with SendText and
// SendBinaryFrame are returned by Receive; binary frames sent by the bridge
// are collected and available through Output.
type Conn struct {
	in        chan bridge.Frame
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	out    bytes.Buffer
	frames int
	notify chan struct{}
}

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{
		in:     make(chan bridge.Frame, 64),
		closed: make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Receive implements bridge.Conn.
func (c *Conn) Receive(ctx context.Context) (bridge.Frame, error) {
	select {
	case <-ctx.Done():
		return bridge.Frame{}, ctx.Err()
	case <-c.closed:
		return bridge.Frame{}, c.closeErr
	case f := <-c.in:
		return f, nil
	}
}

// SendBinary implements bridge.Conn.
func (c *Conn) SendBinary(ctx context.Context, p []byte) error {
	select {
	case <-c.closed:
		return bridge.ErrConnectionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.out.Write(p)
	c.frames++
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendText queues a text frame from the client.
func (c *Conn) SendText(s string) {
	c.in <- bridge.Frame{Type: bridge.FrameText, Data: []byte(s)}
}

// SendBinaryFrame queues a binary frame from the client.
func (c *Conn) SendBinaryFrame(p []byte) {
	c.in <- bridge.Frame{Type: bridge.FrameBinary, Data: append([]byte(nil), p...)}
}

// Disconnect simulates the client going away.
func (c *Conn) Disconnect() {
	c.Fail(bridge.ErrConnectionClosed)
}

// Fail makes every later Receive return err.
func (c *Conn) Fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
}

// Output returns every byte the bridge has sent so far.
func (c *Conn) Output() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.out.Bytes()...)
}

// Frames returns the number of binary frames sent by the bridge.
func (c *Conn) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// WaitForOutput waits until the collected output contains want.
func (c *Conn) WaitForOutput(want []byte, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if bytes.Contains(c.Output(), want) {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return bytes.Contains(c.Output(), want)
		}
	}
}

// Terminal is an in-memory bridge.Terminal. Output queued with Emit is
// returned by ReadContext; input written by the bridge is collected.
type Terminal struct {
	// BlockWrites makes Write block until Close, like a child that stopped
	// reading its input.
	BlockWrites bool

	// ResizeErr is returned by Resize when set.
	ResizeErr error

	output    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	exitOnce  sync.Once

	mu         sync.Mutex
	pending    []byte
	input      bytes.Buffer
	geometries []model.Geometry
	closes     int
	pid        int
	exitCode   int
	written    chan struct{}
}

// NewTerminal returns a running terminal with the given pid.
func NewTerminal(pid int) *Terminal {
	return &Terminal{
		output:   make(chan []byte, 64),
		closed:   make(chan struct{}),
		pid:      pid,
		exitCode: -1,
		written:  make(chan struct{}, 1),
	}
}

// Spawner returns a bridge.Spawner that always hands out t.
func (t *Terminal) Spawner() bridge.Spawner {
	return func(model.Descriptor, pty.Options) (bridge.Terminal, error) {
		return t, nil
	}
}

// Emit queues p as PTY output.
func (t *Terminal) Emit(p []byte) {
	t.output <- append([]byte(nil), p...)
}

// Exit ends the output stream with code, as if the child exited.
func (t *Terminal) Exit(code int) {
	t.exitOnce.Do(func() {
		t.mu.Lock()
		t.exitCode = code
		t.mu.Unlock()
		close(t.output)
	})
}

// ReadContext implements bridge.Terminal.
func (t *Terminal) ReadContext(ctx context.Context, p []byte) (int, error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		t.mu.Unlock()
		return n, nil
	}
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.closed:
		return 0, pty.ErrClosed
	case chunk, ok := <-t.output:
		if !ok {
			return 0, pty.ErrTerminated
		}
		n := copy(p, chunk)
		if n < len(chunk) {
			t.mu.Lock()
			t.pending = append(t.pending, chunk[n:]...)
			t.mu.Unlock()
		}
		return n, nil
	}
}

// Write implements bridge.Terminal.
func (t *Terminal) Write(p []byte) (int, error) {
	if t.BlockWrites {
		<-t.closed
		return 0, pty.ErrClosed
	}
	select {
	case <-t.closed:
		return 0, pty.ErrClosed
	default:
	}

	t.mu.Lock()
	t.input.Write(p)
	t.mu.Unlock()

	select {
	case t.written <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Resize implements bridge.Terminal.
func (t *Terminal) Resize(g model.Geometry) error {
	if t.ResizeErr != nil {
		return &pty.ResizeError{Rows: g.Rows, Cols: g.Cols, Err: t.ResizeErr}
	}
	t.mu.Lock()
	t.geometries = append(t.geometries, g)
	t.mu.Unlock()
	return nil
}

// Close implements bridge.Terminal.
func (t *Terminal) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// PID implements bridge.Terminal.
func (t *Terminal) PID() int {
	return t.pid
}

// ExitCode implements bridge.Terminal.
func (t *Terminal) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Input returns every byte written to the terminal.
func (t *Terminal) Input() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.input.Bytes()...)
}

// WaitForInput waits until the collected input is at least n bytes long.
func (t *Terminal) WaitForInput(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if len(t.Input()) >= n {
			return true
		}
		select {
		case <-t.written:
		case <-deadline.C:
			return len(t.Input()) >= n
		}
	}
}

// Geometries returns every geometry applied by Resize.
func (t *Terminal) Geometries() []model.Geometry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Geometry(nil), t.geometries...)
}

// Closes returns how many times Close was called.
func (t *Terminal) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Closed is closed once Close has been called.
func (t *Terminal) Closed() <-chan struct{} {
	return t.closed
}
