package bridge

import (
	"context"
	"errors"
)

// ErrConnectionClosed is wrapped by Conn implementations when the remote end
// closed or dropped the connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrMessageTooLarge is wrapped by Conn implementations when the client sent a
// frame above the read limit. The connection cannot be read from afterwards.
var ErrMessageTooLarge = errors.New("message too large")

// FrameType distinguishes binary from text frames.
type FrameType int

const (
	FrameBinary FrameType = iota + 1
	FrameText
)

func (t FrameType) String() string {
	switch t {
	case FrameBinary:
		return "binary"
	case FrameText:
		return "text"
	default:
		return "unknown"
	}
}

// Frame is one message received from the client.
type Frame struct {
	Type FrameType
	Data []byte
}

// Conn is the client connection a bridge borrows for one session. The bridge
// never closes it; the owner closes it after Run returns.
//
// One goroutine calls Receive while another calls SendBinary.
type Conn interface {
	// Receive blocks until the next frame arrives. It returns ctx.Err() once
	// ctx is done, an error wrapping ErrMessageTooLarge when a frame exceeded
	// the read limit and an error wrapping ErrConnectionClosed when the remote
	// end has gone away.
	Receive(ctx context.Context) (Frame, error)

	// SendBinary sends p as one binary frame. Implementations must not retain p.
	SendBinary(ctx context.Context, p []byte) error
}
