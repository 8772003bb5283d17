package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/pty"
)

// counters are shared by the two directions; each field has one writer.
type counters struct {
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	resizes  atomic.Int64
}

// result is how a direction ended.
type result struct {
	direction string
	reason    EndReason
	err       error
}

// pumpOutbound forwards PTY output to the connection, one binary frame per read.
func (b *Bridge) pumpOutbound(ctx context.Context, term Terminal, conn Conn) result {
	buf := make([]byte, b.cfg.ReadChunkSize)
	for {
		n, err := term.ReadContext(ctx, buf)
		if n > 0 {
			if serr := conn.SendBinary(ctx, buf[:n]); serr != nil {
				return connResult(ctx, "outbound", serr)
			}
			b.stats.bytesOut.Add(int64(n))
		}
		if err != nil {
			return ptyResult(ctx, "outbound", err)
		}
		if n == 0 {
			return result{direction: "outbound", reason: EndReasonPTYExited}
		}
	}
}

// pumpInbound forwards client frames to the PTY. Text frames that decode as
// control messages are applied instead of written.
func (b *Bridge) pumpInbound(ctx context.Context, term Terminal, conn Conn) result {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return connResult(ctx, "inbound", err)
		}
		if len(frame.Data) == 0 {
			continue
		}

		if frame.Type == FrameText {
			if ctl, ok := DecodeControl(frame.Data); ok {
				b.applyControl(term, ctl)
				continue
			}
		}

		if ctx.Err() != nil {
			return result{direction: "inbound", reason: EndReasonCancelled}
		}
		n, err := term.Write(frame.Data)
		b.stats.bytesIn.Add(int64(n))
		if err != nil {
			return ptyResult(ctx, "inbound", err)
		}
	}
}

// applyControl acts on a decoded control message. Failures are logged and the
// session carries on with its previous geometry.
func (b *Bridge) applyControl(term Terminal, ctl Control) {
	if ctl.Type != ControlResize {
		return
	}

	g := ctl.Geometry
	var err error
	switch {
	case ctl.Err != nil:
		err = &pty.ResizeError{Err: ctl.Err}
	case !g.Valid():
		err = &pty.ResizeError{Rows: g.Rows, Cols: g.Cols, Err: model.ErrInvalidGeometry}
	case g.Rows > b.cfg.MaxRows || g.Cols > b.cfg.MaxCols:
		err = &pty.ResizeError{Rows: g.Rows, Cols: g.Cols, Err: errGeometryTooLarge}
	default:
		err = term.Resize(g)
	}

	if err != nil {
		b.log.Warn("resize error",
			zap.Uint16("rows", g.Rows),
			zap.Uint16("cols", g.Cols),
			zap.Error(err))
		return
	}

	b.stats.resizes.Add(1)
	b.log.Info("terminal resized",
		zap.Uint16("rows", g.Rows),
		zap.Uint16("cols", g.Cols))
}

var errGeometryTooLarge = errors.New("geometry exceeds the configured maximum")

func ptyResult(ctx context.Context, direction string, err error) result {
	switch {
	case errors.Is(err, pty.ErrTerminated), errors.Is(err, pty.ErrClosed):
		return result{direction: direction, reason: EndReasonPTYExited}
	case ctx.Err() != nil:
		return result{direction: direction, reason: EndReasonCancelled}
	default:
		return result{direction: direction, reason: EndReasonIOError, err: fmt.Errorf("pty %s: %w", direction, err)}
	}
}

func connResult(ctx context.Context, direction string, err error) result {
	switch {
	case errors.Is(err, ErrMessageTooLarge):
		return result{direction: direction, reason: EndReasonMessageTooLarge}
	case errors.Is(err, ErrConnectionClosed):
		return result{direction: direction, reason: EndReasonClientDisconnected}
	case ctx.Err() != nil:
		return result{direction: direction, reason: EndReasonCancelled}
	default:
		return result{direction: direction, reason: EndReasonIOError, err: fmt.Errorf("connection %s: %w", direction, err)}
	}
}
