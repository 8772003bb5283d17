package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude-repo-chat/backend/internal/model"
)

const (
	// DefaultPollInterval bounds how long a read waits before re-checking
	// for cancellation.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultTerm is exported to the child when the environment has no TERM.
	DefaultTerm = "xterm-256color"
)

// Options tunes a spawned session.
type Options struct {
	// PollInterval bounds each readiness wait in ReadContext.
	PollInterval time.Duration

	// Term is exported as TERM when the environment does not set one.
	Term string
}

// Session is a spawned child process behind a PTY. It is owned by exactly one
// bridge. One goroutine may read while another writes; Close may be called
// from any goroutine any number of times.
type Session struct {
	proc         *Process
	pollInterval time.Duration

	// readMu serialises the raw descriptor use in ReadContext with Close so a
	// recycled descriptor number is never polled.
	readMu sync.Mutex
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
	exitCode  atomic.Int64
}

// Spawn starts the process described by desc behind a new PTY.
// Every failure is a *SpawnError.
func Spawn(desc model.Descriptor, opts Options) (*Session, error) {
	name, args := desc.Command()
	if err := desc.Validate(); err != nil {
		return nil, &SpawnError{Command: name, Args: args, Err: err}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return nil, &SpawnError{Command: name, Args: args, Err: err}
	}

	proc, err := Start(StartOptions{
		Command: path,
		Args:    args,
		Env:     childEnv(desc.Env, opts.Term),
		Dir:     desc.Dir,
	})
	if err != nil {
		return nil, &SpawnError{Command: name, Args: args, Err: err}
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	s := &Session{
		proc:         proc,
		pollInterval: opts.PollInterval,
	}
	s.exitCode.Store(-1)
	return s, nil
}

// childEnv builds the child environment from the current one plus extra.
func childEnv(extra []string, term string) []string {
	env := append(os.Environ(), extra...)
	if term == "" {
		term = DefaultTerm
	}
	for _, kv := range env {
		if len(kv) > 5 && kv[:5] == "TERM=" {
			return env
		}
	}
	return append(env, "TERM="+term)
}

// PID returns the process ID of the child.
func (s *Session) PID() int {
	return s.proc.PID()
}

// ReadContext reads the next chunk of PTY output. It waits for readiness in
// steps of the poll interval and returns ctx.Err() at the first step after
// ctx is done. It returns ErrTerminated once the child side is gone.
func (s *Session) ReadContext(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, ready, err := s.readStep(p)
		if err != nil {
			return n, err
		}
		if ready {
			return n, nil
		}
	}
}

func (s *Session) readStep(p []byte) (int, bool, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if s.closed.Load() {
		return 0, false, ErrClosed
	}

	ready, err := s.proc.PTY.WaitReadable(s.pollInterval)
	if err != nil {
		if isTerminated(err) {
			return 0, false, ErrTerminated
		}
		return 0, false, fmt.Errorf("wait for pty output: %w", err)
	}
	if !ready {
		return 0, false, nil
	}

	n, err := s.proc.PTY.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) || isTerminated(err) {
			return n, false, ErrTerminated
		}
		return n, false, fmt.Errorf("read pty: %w", err)
	}
	if n == 0 {
		return 0, false, ErrTerminated
	}
	return n, true, nil
}

// Write writes all of p to the PTY input.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := s.proc.PTY.Write(p)
	if err != nil {
		if isTerminated(err) {
			return n, ErrTerminated
		}
		return n, fmt.Errorf("write pty: %w", err)
	}
	return n, nil
}

// Resize applies g to the PTY so the child receives SIGWINCH.
func (s *Session) Resize(g model.Geometry) error {
	if !g.Valid() {
		return &ResizeError{Rows: g.Rows, Cols: g.Cols, Err: model.ErrInvalidGeometry}
	}
	if s.closed.Load() {
		return &ResizeError{Rows: g.Rows, Cols: g.Cols, Err: ErrClosed}
	}
	if err := s.proc.PTY.Resize(g); err != nil {
		return &ResizeError{Rows: g.Rows, Cols: g.Cols, Err: err}
	}
	return nil
}

// Size returns the geometry currently applied to the PTY. A session that was
// never resized reports zero rows and cols.
func (s *Session) Size() (model.Geometry, error) {
	if s.closed.Load() {
		return model.Geometry{}, ErrClosed
	}
	return s.proc.PTY.Size()
}

// Close hangs up the child, closes the master and reaps the child. The reap
// has no timeout. Only the first call does any work; later calls return nil.
func (s *Session) Close() error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)

		// Unblocks a child stuck writing to a master nobody reads any more.
		_ = s.proc.Hangup()

		s.readMu.Lock()
		err := s.proc.Close()
		s.readMu.Unlock()
		if err != nil && !errors.Is(err, os.ErrClosed) {
			s.closeErr = fmt.Errorf("close pty master: %w", err)
		}

		code, _ := s.proc.Wait()
		s.exitCode.Store(int64(code))
	})
	if !first {
		return nil
	}
	return s.closeErr
}

// ExitCode returns the child's exit code after Close, or -1 before Close or
// when the child was killed by a signal.
func (s *Session) ExitCode() int {
	return int(s.exitCode.Load())
}
