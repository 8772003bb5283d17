//go:build windows

package pty

import (
	"errors"
	"os"
)

// errUnsupported is returned by Start on Windows. ConPTY cannot attach to
// tmux sessions, and the bridge is deployed on Unix hosts only.
var errUnsupported = errors.New("pseudo-terminals are not supported on windows")

// Start always fails on Windows.
func Start(opts StartOptions) (*Process, error) {
	return nil, errUnsupported
}

func hangup(pid int) error {
	return nil
}

func isTerminated(err error) bool {
	return errors.Is(err, os.ErrClosed)
}
