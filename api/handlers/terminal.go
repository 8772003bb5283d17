package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/ws"
)

// TerminalHandler attaches browser clients to a terminal over WebSocket.
type TerminalHandler struct {
	enabled   bool
	desc      model.Descriptor
	wsHandler *ws.Handler
	logger    *zap.Logger
}

// NewTerminalHandler creates a new TerminalHandler. Every connection spawns
// desc.
func NewTerminalHandler(enabled bool, desc model.Descriptor, wsHandler *ws.Handler, logger *zap.Logger) *TerminalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalHandler{
		enabled:   enabled,
		desc:      desc,
		wsHandler: wsHandler,
		logger:    logger.Named("terminal_handler"),
	}
}

// Attach handles GET /api/terminal/ws - runs a terminal for the lifetime of
// the WebSocket connection.
func (h *TerminalHandler) Attach(c *gin.Context) {
	if !h.enabled {
		sendError(c, http.StatusForbidden, "TERMINAL_DISABLED", "Terminal access is disabled")
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		sendError(c, http.StatusBadRequest, "UPGRADE_REQUIRED", "Expected a WebSocket upgrade request")
		return
	}

	h.logger.Info("terminal WebSocket connection request",
		zap.String("remote_addr", c.Request.RemoteAddr),
		zap.String("target", h.desc.Target.String()))

	// The upgrader has already answered the request when this fails.
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, h.desc); err != nil {
		h.logger.Debug("terminal attach rejected", zap.Error(err))
	}
}

// RegisterRoutes registers the terminal WebSocket routes. The /ws/terminal
// alias is kept for older clients.
func (h *TerminalHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/terminal/ws", h.Attach)
	r.GET("/ws/terminal", h.Attach)
}
