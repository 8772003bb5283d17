package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the Gin engine with every route and middleware.
func NewRouter(health *HealthHandler, sessions *SessionHandler, terminal *TerminalHandler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(CORSMiddleware())

	health.RegisterRoutes(r)
	terminal.RegisterRoutes(r)

	api := r.Group("/api")
	sessions.RegisterRoutes(api)

	return r
}
