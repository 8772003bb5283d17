package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/pty"
)

// Runner runs one terminal session over an established connection and
// returns its record once the session is over.
type Runner interface {
	Run(ctx context.Context, conn bridge.Conn, desc model.Descriptor, remoteAddr string) (*model.Session, error)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// AllowedOrigins lists the browser origins allowed to connect.
	// "*" allows any origin. Requests without an Origin header are allowed.
	AllowedOrigins []string

	Conn Options
}

// Handler upgrades HTTP requests to terminal WebSocket connections.
type Handler struct {
	runner   Runner
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(runner Runner, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner: runner,
		opts:   cfg.Conn.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		logger: logger.Named("ws"),
	}
}

// HandleConnection upgrades the request and runs a terminal session for desc
// until it ends. The connection is closed with a code that tells the client
// why. It returns the upgrade error, if any; the upgrader has already written
// an HTTP error response in that case.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, desc model.Descriptor) error {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return err
	}

	conn := NewConn(wsConn, h.opts)
	h.logger.Debug("terminal connection accepted", zap.String("remote_addr", r.RemoteAddr))

	record, runErr := h.runner.Run(r.Context(), conn, desc, r.RemoteAddr)

	code, reason := closeCode(runErr)
	fields := []zap.Field{
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("close_code", code),
	}
	if record != nil {
		fields = append(fields, zap.String("session_id", record.ID))
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
	}
	h.logger.Info("terminal connection closed", fields...)

	if err := conn.CloseWithCode(code, reason); err != nil {
		h.logger.Debug("close handshake failed", zap.Error(err))
	}
	return nil
}

// closeCode maps the outcome of a session to a WebSocket close code.
func closeCode(err error) (int, string) {
	var spawnErr *pty.SpawnError
	switch {
	case err == nil:
		return CloseSessionEnded, closeReasonEnded
	case errors.As(err, &spawnErr):
		return CloseSpawnFailed, closeReasonSpawn
	case errors.Is(err, model.ErrShuttingDown):
		return CloseShuttingDown, closeReasonStopped
	default:
		return CloseSpawnFailed, closeReasonSpawn
	}
}

// originChecker builds the upgrader's CheckOrigin from an allow list.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		// Same-origin requests are always allowed.
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
