package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/claude-repo-chat/backend/internal/bridge"
)

const (
	// DefaultWriteWait is the time allowed to write a message to the peer.
	DefaultWriteWait = 10 * time.Second

	// DefaultPongWait is the time allowed to read the next pong message from the peer.
	DefaultPongWait = 60 * time.Second

	// DefaultMaxMessageSize is the largest message accepted from the peer.
	// Pastes arrive as a single frame.
	DefaultMaxMessageSize = 16 * 1024 * 1024
)

// Close codes sent when a terminal connection ends.
const (
	CloseSessionEnded  = websocket.CloseNormalClosure
	CloseSpawnFailed   = websocket.CloseInternalServerErr
	CloseShuttingDown  = websocket.CloseGoingAway
	closeReasonEnded   = "session ended"
	closeReasonSpawn   = "failed to start terminal"
	closeReasonStopped = "server shutting down"
)

// Options tunes a Conn. Zero fields take their defaults.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	return o
}

// pingPeriod must be less than PongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Conn adapts a gorilla WebSocket connection to bridge.Conn and keeps it alive
// with pings.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	// writeMu serialises data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// readMu guards canceled against the pong handler.
	readMu   sync.Mutex
	canceled bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws and starts its keepalive loop. Close stops it.
func NewConn(ws *websocket.Conn, opts Options) *Conn {
	c := &Conn{
		ws:   ws,
		opts: opts.withDefaults(),
		done: make(chan struct{}),
	}

	ws.SetReadLimit(c.opts.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		c.readMu.Lock()
		defer c.readMu.Unlock()
		if c.canceled {
			return nil
		}
		return ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	go c.keepalive()
	return c
}

// Receive implements bridge.Conn. Cancelling ctx forces the pending read to
// fail; the connection cannot be read from afterwards.
func (c *Conn) Receive(ctx context.Context) (bridge.Frame, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Frame{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		c.readMu.Lock()
		c.canceled = true
		c.ws.SetReadDeadline(time.Now())
		c.readMu.Unlock()
	})
	defer stop()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return bridge.Frame{}, ctxErr
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return bridge.Frame{}, fmt.Errorf("%w: limit is %d bytes", bridge.ErrMessageTooLarge, c.opts.MaxMessageSize)
			}
			return bridge.Frame{}, fmt.Errorf("%w: %v", bridge.ErrConnectionClosed, err)
		}

		switch mt {
		case websocket.BinaryMessage:
			return bridge.Frame{Type: bridge.FrameBinary, Data: data}, nil
		case websocket.TextMessage:
			return bridge.Frame{Type: bridge.FrameText, Data: data}, nil
		}
	}
}

// SendBinary implements bridge.Conn.
func (c *Conn) SendBinary(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("write timed out: %w", err)
		}
		return fmt.Errorf("%w: %v", bridge.ErrConnectionClosed, err)
	}
	return nil
}

// keepalive pings the peer until the connection is closed.
func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// CloseWithCode sends a close frame with code and reason, then closes the
// underlying connection.
func (c *Conn) CloseWithCode(code int, reason string) error {
	deadline := time.Now().Add(c.opts.WriteWait)
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the underlying connection without a close handshake.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
