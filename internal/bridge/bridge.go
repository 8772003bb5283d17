package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/pty"
)

const (
	// DefaultReadChunkSize is the largest PTY read forwarded as one frame.
	DefaultReadChunkSize = 10 * 1024

	// DefaultDrainGrace is how long the supervisor waits for the second
	// direction before it forces the PTY closed.
	DefaultDrainGrace = 2 * time.Second

	// DefaultMaxRows and DefaultMaxCols bound accepted resize requests.
	DefaultMaxRows = 500
	DefaultMaxCols = 500
)

var (
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrClosed is returned by Run on a bridge closed before it started.
	ErrClosed = errors.New("bridge is closed")
)

// Config tunes a bridge. Zero fields take their defaults.
type Config struct {
	ReadChunkSize int
	PollInterval  time.Duration
	DrainGrace    time.Duration
	MaxRows       uint16
	MaxCols       uint16
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ReadChunkSize: DefaultReadChunkSize,
		PollInterval:  pty.DefaultPollInterval,
		DrainGrace:    DefaultDrainGrace,
		MaxRows:       DefaultMaxRows,
		MaxCols:       DefaultMaxCols,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = d.DrainGrace
	}
	if c.MaxRows == 0 {
		c.MaxRows = d.MaxRows
	}
	if c.MaxCols == 0 {
		c.MaxCols = d.MaxCols
	}
	return c
}

// Terminal is the PTY side of a bridge. *pty.Session implements it.
type Terminal interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(g model.Geometry) error
	Close() error
	PID() int
	ExitCode() int
}

// Spawner starts the Terminal for a descriptor.
type Spawner func(desc model.Descriptor, opts pty.Options) (Terminal, error)

// SpawnPTY is the default Spawner.
func SpawnPTY(desc model.Descriptor, opts pty.Options) (Terminal, error) {
	s, err := pty.Spawn(desc, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSpawner replaces the PTY spawner.
func WithSpawner(s Spawner) Option {
	return func(b *Bridge) {
		b.spawn = s
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithStateHook registers fn to be called after every state transition.
// fn runs on the goroutine that made the transition while the bridge is
// locked, so it must not block or call back into the bridge.
func WithStateHook(fn func(from, to State)) Option {
	return func(b *Bridge) {
		b.hook = fn
	}
}

// Summary describes a finished (or running) bridge.
type Summary struct {
	Reason    EndReason
	PID       int
	ExitCode  int
	BytesIn   int64
	BytesOut  int64
	Resizes   int64
	StartedAt time.Time
	EndedAt   time.Time

	// Err is the spawn error, or the I/O error that ended the session.
	Err error
}

// Bridge supervises one PTY session and one client connection.
type Bridge struct {
	desc  model.Descriptor
	cfg   Config
	spawn Spawner
	log   *zap.Logger
	hook  func(from, to State)

	started atomic.Bool
	stats   counters
	done    chan struct{}

	mu      sync.Mutex
	state   State
	closing bool
	cancel  context.CancelFunc
	term    Terminal
	summary Summary
}

// New returns a bridge for desc. desc is copied and never changes afterwards.
func New(desc model.Descriptor, cfg Config, opts ...Option) *Bridge {
	desc.Env = append([]string(nil), desc.Env...)
	b := &Bridge{
		desc:  desc,
		cfg:   cfg.withDefaults(),
		spawn: SpawnPTY,
		log:   zap.NewNop(),
		done:  make(chan struct{}),
		state: StateCreated,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done is closed when the bridge reaches StateClosed.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// PID returns the child's process ID, or 0 before spawn.
func (b *Bridge) PID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.term == nil {
		return 0
	}
	return b.term.PID()
}

// Summary returns a snapshot of the session outcome and counters.
func (b *Bridge) Summary() Summary {
	b.mu.Lock()
	s := b.summary
	b.mu.Unlock()

	s.BytesIn = b.stats.bytesIn.Load()
	s.BytesOut = b.stats.bytesOut.Load()
	s.Resizes = b.stats.resizes.Load()
	return s
}

// Close asks the bridge to stop. A running bridge drains and closes
// asynchronously; wait on Done to observe the end. Close never fails and may
// be called any number of times.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closing {
		return nil
	}
	b.closing = true

	switch {
	case b.state == StateCreated && !b.started.Load():
		b.setStateLocked(StateClosed)
		b.summary.Reason = EndReasonCancelled
		close(b.done)
	case b.cancel != nil:
		b.cancel()
	}
	return nil
}

// transition moves from -> to if the bridge is still in from.
func (b *Bridge) transition(from, to State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != from {
		return false
	}
	return b.setStateLocked(to)
}

func (b *Bridge) setStateLocked(to State) bool {
	from := b.state
	if !canTransition(from, to) {
		return false
	}
	b.state = to
	if b.hook != nil {
		b.hook(from, to)
	}
	return true
}

// Run spawns the PTY and pumps bytes between it and conn until either side
// ends or ctx is cancelled. It blocks until every resource is released.
//
// The only error returned for a started session is a *pty.SpawnError; every
// other ending is reported through Summary.
func (b *Bridge) Run(ctx context.Context, conn Conn) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	if b.closing {
		cancel()
	}
	b.summary.StartedAt = time.Now()
	b.mu.Unlock()
	defer cancel()

	name, args := b.desc.Command()
	b.log.Info("starting terminal",
		zap.String("target", b.desc.Target.String()),
		zap.String("command", name),
		zap.Strings("args", args))

	term, err := b.spawn(b.desc, pty.Options{PollInterval: b.cfg.PollInterval})
	if err != nil {
		var spawnErr *pty.SpawnError
		if !errors.As(err, &spawnErr) {
			spawnErr = &pty.SpawnError{Command: name, Args: args, Err: err}
		}
		b.log.Error("failed to start terminal", zap.Error(spawnErr))
		b.finish(EndReasonSpawnFailed, spawnErr, -1)
		return spawnErr
	}

	b.mu.Lock()
	b.term = term
	b.summary.PID = term.PID()
	ok := ctx.Err() == nil && b.setStateLocked(StateRunning)
	b.mu.Unlock()
	if !ok {
		// Cancelled while spawning; nothing has been pumped.
		_ = term.Close()
		b.finish(EndReasonCancelled, nil, term.ExitCode())
		return nil
	}

	b.log.Info("terminal started", zap.Int("pid", term.PID()))

	results := make(chan result, 2)
	go b.runDirection(ctx, results, func(ctx context.Context) result {
		return b.pumpOutbound(ctx, term, conn)
	})
	go b.runDirection(ctx, results, func(ctx context.Context) result {
		return b.pumpInbound(ctx, term, conn)
	})

	first := <-results
	b.transition(StateRunning, StateDraining)
	cancel()

	b.log.Debug("direction ended",
		zap.String("direction", first.direction),
		zap.String("reason", string(first.reason)))

	drained := b.awaitDirection(results)
	if !drained {
		b.log.Warn("direction did not stop in time, forcing terminal closed",
			zap.Duration("grace", b.cfg.DrainGrace))
	}

	if cerr := term.Close(); cerr != nil {
		b.log.Warn("failed to close terminal", zap.Error(cerr))
	}
	if !drained && !b.awaitDirection(results) {
		b.log.Error("direction still blocked after terminal close")
	}

	b.finish(first.reason, first.err, term.ExitCode())
	return nil
}

// runDirection runs fn and reports its result. A panic counts as an I/O error.
func (b *Bridge) runDirection(ctx context.Context, results chan<- result, fn func(context.Context) result) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in terminal pump", zap.Any("panic", r), zap.Stack("stack"))
			results <- result{direction: "panic", reason: EndReasonIOError, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	results <- fn(ctx)
}

func (b *Bridge) awaitDirection(results <-chan result) bool {
	timer := time.NewTimer(b.cfg.DrainGrace)
	defer timer.Stop()
	select {
	case <-results:
		return true
	case <-timer.C:
		return false
	}
}

// finish records the outcome and moves the bridge to StateClosed.
func (b *Bridge) finish(reason EndReason, err error, exitCode int) {
	b.mu.Lock()
	b.summary.Reason = reason
	b.summary.Err = err
	b.summary.ExitCode = exitCode
	b.summary.EndedAt = time.Now()
	if b.state == StateRunning {
		b.setStateLocked(StateDraining)
	}
	b.setStateLocked(StateClosed)
	b.mu.Unlock()
	close(b.done)

	s := b.Summary()
	fields := []zap.Field{
		zap.String("reason", string(s.Reason)),
		zap.Int("pid", s.PID),
		zap.Int("exit_code", s.ExitCode),
		zap.Int64("bytes_in", s.BytesIn),
		zap.Int64("bytes_out", s.BytesOut),
		zap.Int64("resizes", s.Resizes),
		zap.Duration("duration", s.EndedAt.Sub(s.StartedAt)),
	}
	if err != nil && reason != EndReasonSpawnFailed {
		fields = append(fields, zap.Error(err))
	}
	b.log.Info("terminal closed", fields...)
}
