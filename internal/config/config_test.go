package config

import (
	"errors"
	"testing"
	"time"

	"github.com/claude-repo-chat/backend/internal/model"
)

// TestLoadDefaults tests the values used when nothing is set
func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Port != 8080 || s.Host != "0.0.0.0" {
		t.Errorf("Expected 0.0.0.0:8080, got %s", s.Addr())
	}
	if !s.TerminalEnabled {
		t.Error("Expected terminal to be enabled by default")
	}
	if s.Shell != "/bin/bash" {
		t.Errorf("Expected /bin/bash, got %q", s.Shell)
	}
	if s.PollInterval != 100*time.Millisecond {
		t.Errorf("Expected 100ms poll interval, got %v", s.PollInterval)
	}
	if s.ReadChunkSize != 10240 {
		t.Errorf("Expected 10240 byte chunks, got %d", s.ReadChunkSize)
	}
	if s.MaxRows != 500 || s.MaxCols != 500 {
		t.Errorf("Expected 500x500 limit, got %dx%d", s.MaxRows, s.MaxCols)
	}
	if s.MaxMessageSize != 16<<20 {
		t.Errorf("Expected 16 MiB message limit, got %d", s.MaxMessageSize)
	}
	if len(s.AllowedOrigins) != 1 || s.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origins, got %v", s.AllowedOrigins)
	}
}

// TestLoadFromEnv tests that REPOCHAT_ variables override defaults
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REPOCHAT_PORT", "9000")
	t.Setenv("REPOCHAT_TERMINAL_ENABLED", "false")
	t.Setenv("REPOCHAT_TMUX_SESSION", "main")
	t.Setenv("REPOCHAT_SHELL", "/bin/zsh")
	t.Setenv("REPOCHAT_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("REPOCHAT_DRAIN_GRACE", "750ms")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Addr() != "0.0.0.0:9000" {
		t.Errorf("Expected 0.0.0.0:9000, got %s", s.Addr())
	}
	if s.TerminalEnabled {
		t.Error("Expected terminal to be disabled")
	}
	if len(s.AllowedOrigins) != 2 || s.AllowedOrigins[1] != "https://b.test" {
		t.Errorf("Expected two origins, got %v", s.AllowedOrigins)
	}
	if s.BridgeConfig().DrainGrace != 750*time.Millisecond {
		t.Errorf("Expected 750ms drain grace, got %v", s.BridgeConfig().DrainGrace)
	}

	d := s.Descriptor()
	if d.Target != model.TargetNamedSession || d.SessionName != "main" || d.ShellPath != "/bin/zsh" {
		t.Errorf("Expected attach to 'main', got %+v", d)
	}
	name, args := d.Command()
	if name != "tmux" || len(args) != 3 || args[2] != "main" {
		t.Errorf("Expected tmux attach-session -t main, got %s %v", name, args)
	}
}

// TestDescriptorShell tests that no session name means a fresh shell
func TestDescriptorShell(t *testing.T) {
	s := &Settings{Shell: "/bin/sh", Workdir: "/srv/repo"}
	d := s.Descriptor()

	if d.Target != model.TargetShell {
		t.Errorf("Expected shell target, got %s", d.Target)
	}
	if d.Dir != "/srv/repo" {
		t.Errorf("Expected workdir /srv/repo, got %q", d.Dir)
	}
	if name, args := d.Command(); name != "/bin/sh" || len(args) != 0 {
		t.Errorf("Expected /bin/sh with no args, got %s %v", name, args)
	}
}

// TestValidate tests rejected settings
func TestValidate(t *testing.T) {
	valid := func() Settings {
		s, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return *s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		target error
	}{
		{"port", func(s *Settings) { s.Port = 70000 }, nil},
		{"shell", func(s *Settings) { s.Shell = " " }, model.ErrShellRequired},
		{"geometry", func(s *Settings) { s.MaxRows = 0 }, model.ErrInvalidGeometry},
		{"poll interval", func(s *Settings) { s.PollInterval = 0 }, nil},
		{"log format", func(s *Settings) { s.LogFormat = "xml" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
		})
	}
}

// TestLoadInvalidEnv tests that malformed values fail loading
func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("REPOCHAT_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed port")
	}
}
