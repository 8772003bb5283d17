package model

import "time"

// SessionStatus represents the status of a terminal session record.
type SessionStatus string

const (
	SessionStatusStarting    SessionStatus = "starting"
	SessionStatusRunning     SessionStatus = "running"
	SessionStatusClosed      SessionStatus = "closed"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

// Active reports whether a session with this status may still have a live PTY.
func (s SessionStatus) Active() bool {
	return s == SessionStatusStarting || s == SessionStatusRunning
}

// Session is the stored metadata of one terminal bridge run.
// Terminal output is never stored.
type Session struct {
	ID          string        `json:"id"`
	Target      string        `json:"target"`
	SessionName string        `json:"sessionName,omitempty"`
	ShellPath   string        `json:"shellPath"`
	RemoteAddr  string        `json:"remoteAddr,omitempty"`
	Status      SessionStatus `json:"status"`
	PID         *int          `json:"pid,omitempty"`
	ExitCode    *int          `json:"exitCode,omitempty"`
	EndReason   string        `json:"endReason,omitempty"`
	Error       string        `json:"error,omitempty"`
	BytesIn     int64         `json:"bytesIn"`
	BytesOut    int64         `json:"bytesOut"`
	Resizes     int64         `json:"resizes"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
}

// Duration returns how long the session ran, or has been running so far.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.CreatedAt)
	}
	return time.Since(s.CreatedAt)
}

// FinishParams carries the outcome of a bridge run into its session record.
type FinishParams struct {
	Status    SessionStatus
	ExitCode  *int
	EndReason string
	Error     string
	BytesIn   int64
	BytesOut  int64
	Resizes   int64
	EndedAt   time.Time
}
