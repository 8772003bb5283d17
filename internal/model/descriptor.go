package model

import "fmt"

// TargetKind selects what a terminal bridge spawns behind the PTY.
type TargetKind int

const (
	// TargetShell spawns a fresh interactive shell.
	TargetShell TargetKind = iota

	// TargetNamedSession attaches to an externally managed multiplexer session.
	TargetNamedSession
)

// DefaultMultiplexer is the multiplexer used to attach to named sessions.
const DefaultMultiplexer = "tmux"

// String returns the name stored in session records.
func (k TargetKind) String() string {
	switch k {
	case TargetShell:
		return "shell"
	case TargetNamedSession:
		return "named_session"
	default:
		return fmt.Sprintf("target(%d)", int(k))
	}
}

// Descriptor describes the process a bridge runs behind its PTY.
// A bridge copies the descriptor when it is constructed, so later changes
// by the caller have no effect on a running session.
type Descriptor struct {
	Target TargetKind

	// SessionName is the multiplexer session to attach to. Only used by TargetNamedSession.
	SessionName string

	// ShellPath is the interactive shell spawned for TargetShell.
	ShellPath string

	// Multiplexer is the executable used for TargetNamedSession. Defaults to tmux.
	Multiplexer string

	// Dir is the working directory of the child. Empty means inherit.
	Dir string

	// Env is appended to the inherited environment of the child.
	Env []string
}

// NewShellDescriptor returns a descriptor that spawns shellPath.
func NewShellDescriptor(shellPath string) Descriptor {
	return Descriptor{Target: TargetShell, ShellPath: shellPath}
}

// NewNamedSessionDescriptor returns a descriptor that attaches to the named
// multiplexer session. shellPath is kept for record keeping only.
func NewNamedSessionDescriptor(name, shellPath string) Descriptor {
	return Descriptor{
		Target:      TargetNamedSession,
		SessionName: name,
		ShellPath:   shellPath,
		Multiplexer: DefaultMultiplexer,
	}
}

// Validate checks that the descriptor names something that can be spawned.
func (d Descriptor) Validate() error {
	switch d.Target {
	case TargetShell:
		if d.ShellPath == "" {
			return ErrShellRequired
		}
	case TargetNamedSession:
		if d.SessionName == "" {
			return ErrSessionNameRequired
		}
	default:
		return fmt.Errorf("unknown target kind %d", int(d.Target))
	}
	return nil
}

// Command returns the executable and arguments for the descriptor.
func (d Descriptor) Command() (string, []string) {
	if d.Target == TargetNamedSession {
		mux := d.Multiplexer
		if mux == "" {
			mux = DefaultMultiplexer
		}
		return mux, []string{"attach-session", "-t", d.SessionName}
	}
	return d.ShellPath, nil
}

// Geometry is a terminal window size in character cells.
type Geometry struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool {
	return g.Rows > 0 && g.Cols > 0
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}
