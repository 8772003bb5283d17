// Package config loads server settings from REPOCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/ws"
)

// Prefix is prepended to every environment variable name.
const Prefix = "REPOCHAT"

// Settings holds the server configuration. Each field is read from
// REPOCHAT_<FIELD_NAME>, e.g. REPOCHAT_TMUX_SESSION; unprefixed variables such
// as $SHELL are never consulted.
type Settings struct {
	Port int    `split_words:"true" default:"8080"`
	Host string `split_words:"true" default:"0.0.0.0"`

	// Terminal settings
	TerminalEnabled bool   `split_words:"true" default:"true"`
	TmuxSession     string `split_words:"true" default:""`
	Shell           string `split_words:"true" default:"/bin/bash"`
	Multiplexer     string `split_words:"true" default:"tmux"`
	Workdir         string `split_words:"true" default:""`

	DBPath         string   `split_words:"true" default:"data/sessions.db"`
	LogLevel       string   `split_words:"true" default:"info"`
	LogFormat      string   `split_words:"true" default:"json"`
	AllowedOrigins []string `split_words:"true" default:"*"`

	// Bridge tuning
	PollInterval  time.Duration `split_words:"true" default:"100ms"`
	ReadChunkSize int           `split_words:"true" default:"10240"`
	DrainGrace    time.Duration `split_words:"true" default:"2s"`
	MaxRows       uint16        `split_words:"true" default:"500"`
	MaxCols       uint16        `split_words:"true" default:"500"`

	// WebSocket tuning
	MaxMessageSize int64         `split_words:"true" default:"16777216"`
	WriteWait      time.Duration `split_words:"true" default:"10s"`
	PongWait       time.Duration `split_words:"true" default:"60s"`

	ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
}

// Load reads Settings from the environment and validates them.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings the server cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", s.Port))
	}
	if strings.TrimSpace(s.Shell) == "" {
		errs = append(errs, model.ErrShellRequired)
	}
	if s.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if s.ReadChunkSize <= 0 {
		errs = append(errs, errors.New("read chunk size must be positive"))
	}
	if s.MaxRows == 0 || s.MaxCols == 0 {
		errs = append(errs, model.ErrInvalidGeometry)
	}
	if s.PongWait <= 0 || s.WriteWait <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	switch strings.ToLower(s.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", s.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Descriptor returns what each terminal connection spawns: an attach to
// TmuxSession when it is set, otherwise a fresh Shell.
func (s *Settings) Descriptor() model.Descriptor {
	var d model.Descriptor
	if s.TmuxSession != "" {
		d = model.NewNamedSessionDescriptor(s.TmuxSession, s.Shell)
		if s.Multiplexer != "" {
			d.Multiplexer = s.Multiplexer
		}
	} else {
		d = model.NewShellDescriptor(s.Shell)
	}
	d.Dir = s.Workdir
	return d
}

// BridgeConfig returns the bridge tuning.
func (s *Settings) BridgeConfig() bridge.Config {
	return bridge.Config{
		ReadChunkSize: s.ReadChunkSize,
		PollInterval:  s.PollInterval,
		DrainGrace:    s.DrainGrace,
		MaxRows:       s.MaxRows,
		MaxCols:       s.MaxCols,
	}
}

// HandlerConfig returns the WebSocket handler settings.
func (s *Settings) HandlerConfig() ws.HandlerConfig {
	return ws.HandlerConfig{
		AllowedOrigins: s.AllowedOrigins,
		Conn: ws.Options{
			WriteWait:      s.WriteWait,
			PongWait:       s.PongWait,
			MaxMessageSize: s.MaxMessageSize,
		},
	}
}
