// Package pty owns the pseudo-terminal side of a terminal bridge: spawning a
// shell or multiplexer attach behind a PTY, resizing it, reading its output
// with bounded latency and tearing it down exactly once.
package pty

import (
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/claude-repo-chat/backend/internal/model"
)

// PTY represents the master side of a pseudo-terminal.
type PTY interface {
	// Read reads data from the PTY output.
	io.Reader

	// Write writes data to the PTY input.
	io.Writer

	// Close closes the PTY master.
	io.Closer

	// Resize changes the PTY window size.
	Resize(g model.Geometry) error

	// Size returns the current PTY window size.
	Size() (model.Geometry, error)

	// WaitReadable blocks for at most timeout until the master has data,
	// has been hung up, or has failed. It reports false on timeout.
	WaitReadable(timeout time.Duration) (bool, error)
}

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the command to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment of the process.
	// If nil, the current process environment is used.
	Env []string

	// Dir is the working directory for the process.
	Dir string
}

// Process represents a running PTY process.
type Process struct {
	PTY PTY
	Cmd *exec.Cmd
	pid int
}

// PID returns the process ID of the running process.
func (p *Process) PID() int {
	return p.pid
}

// Wait waits for the process to exit and returns the exit code.
// Returns -1 if the process was killed by a signal.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Hangup sends SIGHUP to the process group the child leads.
func (p *Process) Hangup() error {
	return hangup(p.pid)
}

// Close closes the PTY master.
func (p *Process) Close() error {
	return p.PTY.Close()
}
