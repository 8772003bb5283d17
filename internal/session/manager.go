package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/pty"
)

// recordTimeout bounds each metadata write so a slow database never holds up
// a terminal.
const recordTimeout = 5 * time.Second

// Store persists session records. *repository.SessionRepository implements it.
type Store interface {
	Create(ctx context.Context, session *model.Session) error
	MarkRunning(ctx context.Context, id string, pid int) error
	Finish(ctx context.Context, id string, p model.FinishParams) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, limit int) ([]*model.Session, error)
}

// Config holds configuration for the session manager.
type Config struct {
	Bridge bridge.Config

	// Spawner overrides how terminals are started. Defaults to a real PTY.
	Spawner bridge.Spawner
}

// Manager runs one bridge per client connection and keeps their records.
// Bridges share nothing; the manager only tracks which are alive.
type Manager struct {
	store  Store
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	active  map[string]*bridge.Bridge
	closing bool
	wg      sync.WaitGroup
}

// NewManager creates a new session manager.
func NewManager(store Store, config Config, logger *zap.Logger) *Manager {
	if config.Spawner == nil {
		config.Spawner = bridge.SpawnPTY
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:  store,
		config: config,
		logger: logger.Named("session"),
		active: make(map[string]*bridge.Bridge),
	}
}

// Run runs a terminal session for desc over conn and blocks until it ends.
// It returns the final record of the session together with the bridge's
// error: a *pty.SpawnError when the terminal could not start, or
// model.ErrShuttingDown when the manager stopped the session.
func (m *Manager) Run(ctx context.Context, conn bridge.Conn, desc model.Descriptor, remoteAddr string) (*model.Session, error) {
	now := time.Now()
	record := &model.Session{
		ID:          uuid.New().String(),
		Target:      desc.Target.String(),
		SessionName: desc.SessionName,
		ShellPath:   desc.ShellPath,
		RemoteAddr:  remoteAddr,
		Status:      model.SessionStatusStarting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	logger := m.logger.With(zap.String("session_id", record.ID))

	b := bridge.New(desc, m.config.Bridge,
		bridge.WithLogger(logger),
		bridge.WithSpawner(m.recordingSpawner(record.ID, logger)))

	if err := m.register(record.ID, b); err != nil {
		return nil, err
	}
	defer m.unregister(record.ID)

	m.persist(ctx, logger, "create", func(ctx context.Context) error {
		return m.store.Create(ctx, record)
	})

	runErr := b.Run(ctx, conn)

	summary := b.Summary()
	params := finishParams(summary)
	m.persist(ctx, logger, "finish", func(ctx context.Context) error {
		return m.store.Finish(ctx, record.ID, params)
	})
	applyFinish(record, summary, params)

	if errors.Is(runErr, bridge.ErrClosed) || (runErr == nil && summary.Reason == bridge.EndReasonCancelled && m.isClosing()) {
		return record, model.ErrShuttingDown
	}
	return record, runErr
}

// recordingSpawner wraps the configured spawner to record the PID as soon as
// the child exists.
func (m *Manager) recordingSpawner(id string, logger *zap.Logger) bridge.Spawner {
	return func(desc model.Descriptor, opts pty.Options) (bridge.Terminal, error) {
		term, err := m.config.Spawner(desc, opts)
		if err != nil {
			return nil, err
		}
		m.persist(context.Background(), logger, "mark running", func(ctx context.Context) error {
			return m.store.MarkRunning(ctx, id, term.PID())
		})
		return term, nil
	}
}

// persist runs a metadata write. Failures are logged and never end a session.
func (m *Manager) persist(ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Warn("failed to record session", zap.String("op", op), zap.Error(err))
	}
}

func (m *Manager) register(id string, b *bridge.Bridge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return model.ErrShuttingDown
	}
	m.active[id] = b
	m.wg.Add(1)
	return nil
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	m.wg.Done()
}

func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// ActiveCount returns the number of sessions currently running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Get retrieves a session record by ID.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	return m.store.GetByID(ctx, id)
}

// List retrieves the most recent session records.
func (m *Manager) List(ctx context.Context, limit int) ([]*model.Session, error) {
	return m.store.List(ctx, limit)
}

// Shutdown refuses new sessions, closes every active bridge and waits for
// them to finish or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	bridges := make([]*bridge.Bridge, 0, len(m.active))
	for _, b := range m.active {
		bridges = append(bridges, b)
	}
	m.mu.Unlock()

	if len(bridges) > 0 {
		m.logger.Info("closing active sessions", zap.Int("count", len(bridges)))
	}
	for _, b := range bridges {
		_ = b.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d sessions: %w", m.ActiveCount(), ctx.Err())
	}
}

func finishParams(s bridge.Summary) model.FinishParams {
	p := model.FinishParams{
		Status:    model.SessionStatusClosed,
		EndReason: string(s.Reason),
		BytesIn:   s.BytesIn,
		BytesOut:  s.BytesOut,
		Resizes:   s.Resizes,
		EndedAt:   s.EndedAt,
	}
	if p.EndedAt.IsZero() {
		p.EndedAt = time.Now()
	}
	if s.Err != nil {
		p.Error = s.Err.Error()
	}
	if s.Reason == bridge.EndReasonSpawnFailed {
		p.Status = model.SessionStatusFailed
	} else if s.PID > 0 {
		code := s.ExitCode
		p.ExitCode = &code
	}
	return p
}

func applyFinish(record *model.Session, s bridge.Summary, p model.FinishParams) {
	if s.PID > 0 {
		pid := s.PID
		record.PID = &pid
	}
	record.Status = p.Status
	record.ExitCode = p.ExitCode
	record.EndReason = p.EndReason
	record.Error = p.Error
	record.BytesIn = p.BytesIn
	record.BytesOut = p.BytesOut
	record.Resizes = p.Resizes
	record.UpdatedAt = time.Now()
	endedAt := p.EndedAt
	record.EndedAt = &endedAt
}
