package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/claude-repo-chat/backend/api/handlers"
	"github.com/claude-repo-chat/backend/internal/config"
	"github.com/claude-repo-chat/backend/internal/db"
	"github.com/claude-repo-chat/backend/internal/logger"
	"github.com/claude-repo-chat/backend/internal/repository"
	"github.com/claude-repo-chat/backend/internal/session"
	"github.com/claude-repo-chat/backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	gin.SetMode(gin.ReleaseMode)

	// Initialize database
	database, err := db.InitDB(settings.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.CloseDB()

	sessionRepo := repository.NewSessionRepository(database)

	// Records left active by a previous process have no live terminal.
	if n, err := sessionRepo.MarkInterrupted(context.Background()); err != nil {
		log.Warn("failed to reconcile stale sessions", zap.Error(err))
	} else if n > 0 {
		log.Info("marked stale sessions interrupted", zap.Int64("count", n))
	}

	sessionManager := session.NewManager(sessionRepo, session.Config{
		Bridge: settings.BridgeConfig(),
	}, log)

	wsHandler := ws.NewHandler(sessionManager, settings.HandlerConfig(), log)

	router := handlers.NewRouter(
		handlers.NewHealthHandler(settings.TerminalEnabled, sessionManager),
		handlers.NewSessionHandler(sessionManager),
		handlers.NewTerminalHandler(settings.TerminalEnabled, settings.Descriptor(), wsHandler, log),
		log,
	)

	server := &http.Server{
		Addr:    settings.Addr(),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", settings.Addr()),
			zap.Bool("terminal_enabled", settings.TerminalEnabled),
			zap.String("target", settings.Descriptor().Target.String()))
		serveErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by server.Shutdown, so
	// terminals are closed first.
	if err := sessionManager.Shutdown(ctx); err != nil {
		log.Warn("sessions did not close in time", zap.Error(err))
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http server did not shut down cleanly", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
