package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session record is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrShellRequired is returned when a descriptor has no shell path.
	ErrShellRequired = errors.New("shell path is required")

	// ErrSessionNameRequired is returned when a named-session descriptor has no name.
	ErrSessionNameRequired = errors.New("session name is required")

	// ErrInvalidGeometry is returned when a geometry has a zero dimension.
	ErrInvalidGeometry = errors.New("terminal geometry must have positive rows and cols")

	// ErrTerminalDisabled is returned when terminal access is administratively disabled.
	ErrTerminalDisabled = errors.New("terminal access is disabled")

	// ErrShuttingDown is returned when a new terminal is requested during shutdown.
	ErrShuttingDown = errors.New("server is shutting down")
)
