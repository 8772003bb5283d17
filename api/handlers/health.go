package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	serviceID   = "claude-repo-chat"
	serviceName = "Claude Repo Chat"
	version     = "0.1.0"
)

// ActiveCounter reports how many terminal sessions are running.
type ActiveCounter interface {
	ActiveCount() int
}

// HealthHandler serves liveness and service information.
type HealthHandler struct {
	terminalEnabled bool
	sessions        ActiveCounter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(terminalEnabled bool, sessions ActiveCounter) *HealthHandler {
	return &HealthHandler{terminalEnabled: terminalEnabled, sessions: sessions}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"service":          serviceID,
		"terminal_enabled": h.terminalEnabled,
		"active_sessions":  h.sessions.ActiveCount(),
	})
}

// Root handles GET /.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": version,
	})
}

// RegisterRoutes registers the health routes on the engine root.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
}
