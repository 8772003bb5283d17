package pty

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by operations on a session after Close.
	ErrClosed = errors.New("pty session is closed")

	// ErrTerminated is returned by ReadContext once the child side of the
	// PTY is gone. It is the normal way a session ends.
	ErrTerminated = errors.New("pty terminated")
)

// SpawnError reports that the target process could not be started.
// It is fatal for the bridge that requested the spawn.
type SpawnError struct {
	Command string
	Args    []string
	Err     error
}

func (e *SpawnError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	return fmt.Sprintf("spawn %q: %v", cmdline, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ResizeError reports that a window-size change could not be applied.
// The session keeps its previous geometry.
type ResizeError struct {
	Rows uint16
	Cols uint16
	Err  error
}

func (e *ResizeError) Error() string {
	if e.Rows == 0 && e.Cols == 0 {
		return fmt.Sprintf("resize: %v", e.Err)
	}
	return fmt.Sprintf("resize to %dx%d: %v", e.Rows, e.Cols, e.Err)
}

func (e *ResizeError) Unwrap() error {
	return e.Err
}
