// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/repository"
)

// maxListLimit caps the limit query parameter.
const maxListLimit = 500

// SessionStore reads terminal session records.
type SessionStore interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, limit int) ([]*model.Session, error)
}

// SessionHandler serves the stored metadata of terminal sessions.
type SessionHandler struct {
	sessions SessionStore
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID          string `json:"id"`
	Target      string `json:"target"`
	SessionName string `json:"sessionName,omitempty"`
	ShellPath   string `json:"shellPath"`
	RemoteAddr  string `json:"remoteAddr,omitempty"`
	Status      string `json:"status"`
	PID         *int   `json:"pid,omitempty"`
	ExitCode    *int   `json:"exitCode,omitempty"`
	EndReason   string `json:"endReason,omitempty"`
	Error       string `json:"error,omitempty"`
	BytesIn     int64  `json:"bytesIn"`
	BytesOut    int64  `json:"bytesOut"`
	Resizes     int64  `json:"resizes"`
	Duration    string `json:"duration"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	EndedAt     string `json:"endedAt,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(s *model.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:          s.ID,
		Target:      s.Target,
		SessionName: s.SessionName,
		ShellPath:   s.ShellPath,
		RemoteAddr:  s.RemoteAddr,
		Status:      string(s.Status),
		PID:         s.PID,
		ExitCode:    s.ExitCode,
		EndReason:   s.EndReason,
		Error:       s.Error,
		BytesIn:     s.BytesIn,
		BytesOut:    s.BytesOut,
		Resizes:     s.Resizes,
		Duration:    formatDuration(s.Duration()),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration rounds to whole seconds, e.g. "1h2m3s" or "45s".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /api/terminal/sessions - lists the most recent sessions.
func (h *SessionHandler) List(c *gin.Context) {
	limit := repository.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	response := make([]*SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = toSessionResponse(sess)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/terminal/sessions/:id - gets one session record.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// RegisterRoutes registers the session routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/terminal/sessions", h.List)
	rg.GET("/terminal/sessions/:id", h.Get)
}
