//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/claude-repo-chat/backend/internal/model"
)

// unixPTY implements PTY on top of a /dev/ptmx master.
type unixPTY struct {
	master *os.File
	fd     int
}

func (p *unixPTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *unixPTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *unixPTY) Close() error {
	return p.master.Close()
}

// Resize and Size go through the file's raw connection so the descriptor
// stays referenced during the ioctl and a closed master reports os.ErrClosed
// instead of hitting a reused descriptor number.
func (p *unixPTY) Resize(g model.Geometry) error {
	ws := &unix.Winsize{Row: g.Rows, Col: g.Cols}
	return p.control(func(fd int) error {
		return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, ws)
	})
}

func (p *unixPTY) Size() (model.Geometry, error) {
	var g model.Geometry
	err := p.control(func(fd int) error {
		ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
		if err != nil {
			return err
		}
		g = model.Geometry{Rows: ws.Row, Cols: ws.Col}
		return nil
	})
	return g, err
}

func (p *unixPTY) control(fn func(fd int) error) error {
	rc, err := p.master.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return fmt.Errorf("%w: %v", os.ErrClosed, err)
	}
	return opErr
}

func (p *unixPTY) WaitReadable(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, os.ErrClosed
	}
	// POLLHUP and POLLERR count as readable: the next read reports the hangup.
	return true, nil
}

// Start starts a new process with a PTY as its controlling terminal.
// No window size is set; the first resize from the client defines it.
func Start(opts StartOptions) (*Process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	// creack/pty starts the child with Setsid and Setctty, so the child leads
	// its own process group and the slave is its controlling terminal.
	master, err := creackpty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Fd switches the master to blocking mode; reads are gated by WaitReadable.
	fd := int(master.Fd())

	return &Process{
		PTY: &unixPTY{master: master, fd: fd},
		Cmd: cmd,
		pid: cmd.Process.Pid,
	}, nil
}

// hangup delivers SIGHUP to the process group led by pid, as the kernel does
// when a controlling terminal goes away.
func hangup(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGHUP)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// isTerminated reports whether err is how a master read signals that the
// child side is gone.
func isTerminated(err error) bool {
	return errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)
}
