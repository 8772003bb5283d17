package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/claude-repo-chat/backend/internal/model"
)

// DefaultListLimit is used by List when no positive limit is given.
const DefaultListLimit = 50

// SessionRepository provides data access for terminal session records.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const selectColumns = `
	SELECT id, target, session_name, shell_path, remote_addr, status, pid, exit_code,
		end_reason, error, bytes_in, bytes_out, resizes, created_at, updated_at, ended_at
	FROM sessions
`

// Create inserts a new session into the database.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, target, session_name, shell_path, remote_addr, status, pid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Target,
		nullString(session.SessionName),
		session.ShellPath,
		nullString(session.RemoteAddr),
		session.Status,
		session.PID,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// List retrieves the most recent sessions, newest first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// MarkRunning records the child PID once the bridge has spawned it.
func (r *SessionRepository) MarkRunning(ctx context.Context, id string, pid int) error {
	query := `
		UPDATE sessions
		SET status = ?, pid = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStatusRunning, pid, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark session running: %w", err)
	}

	return expectOneRow(result)
}

// Finish records the outcome of a session.
func (r *SessionRepository) Finish(ctx context.Context, id string, p model.FinishParams) error {
	query := `
		UPDATE sessions
		SET status = ?, exit_code = ?, end_reason = ?, error = ?,
			bytes_in = ?, bytes_out = ?, resizes = ?, updated_at = ?, ended_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Status,
		p.ExitCode,
		nullString(p.EndReason),
		nullString(p.Error),
		p.BytesIn,
		p.BytesOut,
		p.Resizes,
		time.Now(),
		p.EndedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	return expectOneRow(result)
}

// MarkInterrupted marks every session still starting or running as
// interrupted. It is called at startup, when no bridge from a previous
// process can still be alive, and returns the number of records changed.
func (r *SessionRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	query := `
		UPDATE sessions
		SET status = ?, end_reason = COALESCE(end_reason, 'server_restarted'), updated_at = ?, ended_at = ?
		WHERE status IN (?, ?)
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		model.SessionStatusInterrupted, now, now,
		model.SessionStatusStarting, model.SessionStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark sessions interrupted: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of sessions with the given status.
func (r *SessionRepository) CountByStatus(ctx context.Context, status model.SessionStatus) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE status = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*model.Session, error) {
	session := &model.Session{}
	var sessionName, remoteAddr, endReason, errText sql.NullString
	var pid, exitCode sql.NullInt64
	var endedAt sql.NullTime

	err := s.Scan(
		&session.ID,
		&session.Target,
		&sessionName,
		&session.ShellPath,
		&remoteAddr,
		&session.Status,
		&pid,
		&exitCode,
		&endReason,
		&errText,
		&session.BytesIn,
		&session.BytesOut,
		&session.Resizes,
		&session.CreatedAt,
		&session.UpdatedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	session.SessionName = sessionName.String
	session.RemoteAddr = remoteAddr.String
	session.EndReason = endReason.String
	session.Error = errText.String

	if pid.Valid {
		p := int(pid.Int64)
		session.PID = &p
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		session.ExitCode = &code
	}

	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}

	return session, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
