package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/bridge/bridgetest"
	"github.com/claude-repo-chat/backend/internal/db"
	"github.com/claude-repo-chat/backend/internal/model"
	"github.com/claude-repo-chat/backend/internal/repository"
	"github.com/claude-repo-chat/backend/internal/session"
	"github.com/claude-repo-chat/backend/internal/ws"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testEnv struct {
	router  *gin.Engine
	manager *session.Manager
	repo    *repository.SessionRepository
	term    *bridgetest.Terminal
}

func setupTestEnv(t *testing.T, terminalEnabled bool, logger *zap.Logger) *testEnv {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	repo := repository.NewSessionRepository(database)

	term := bridgetest.NewTerminal(42)
	manager := session.NewManager(repo, session.Config{
		Bridge:  bridge.Config{DrainGrace: 200 * time.Millisecond},
		Spawner: term.Spawner(),
	}, logger)

	wsHandler := ws.NewHandler(manager, ws.HandlerConfig{AllowedOrigins: []string{"*"}}, logger)
	router := NewRouter(
		NewHealthHandler(terminalEnabled, manager),
		NewSessionHandler(manager),
		NewTerminalHandler(terminalEnabled, model.NewShellDescriptor("/bin/sh"), wsHandler, logger),
		logger,
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.Shutdown(ctx)
		database.Close()
	})

	return &testEnv{router: router, manager: manager, repo: repo, term: term}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	w := env.do(http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Status          string `json:"status"`
		Service         string `json:"service"`
		TerminalEnabled bool   `json:"terminal_enabled"`
		ActiveSessions  int    `json:"active_sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Status != "healthy" || body.Service != "claude-repo-chat" {
		t.Errorf("Unexpected health body: %+v", body)
	}
	if !body.TerminalEnabled || body.ActiveSessions != 0 {
		t.Errorf("Expected enabled terminal with no sessions, got %+v", body)
	}
}

func TestRoot(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	w := env.do(http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["service"] != "Claude Repo Chat" || body["version"] != "0.1.0" {
		t.Errorf("Unexpected root body: %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	w := env.do(http.MethodOptions, "/api/terminal/sessions")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected permissive CORS header, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	// Browsers reject credentials with a wildcard origin.
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Expected no credentials header with a wildcard origin, got %q", got)
	}
}

func TestTerminalDisabled(t *testing.T) {
	env := setupTestEnv(t, false, nil)

	for _, path := range []string{"/api/terminal/ws", "/ws/terminal"} {
		w := env.do(http.MethodGet, path)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, w.Code)
		}
		if got := decodeError(t, w); got.Code != "TERMINAL_DISABLED" {
			t.Errorf("%s: expected TERMINAL_DISABLED, got %q", path, got.Code)
		}
	}
	if env.manager.ActiveCount() != 0 {
		t.Error("Expected no session to start")
	}
}

func TestTerminalRequiresUpgrade(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	w := env.do(http.MethodGet, "/api/terminal/ws")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if got := decodeError(t, w); got.Code != "UPGRADE_REQUIRED" {
		t.Errorf("Expected UPGRADE_REQUIRED, got %q", got.Code)
	}
}

func TestSessionList(t *testing.T) {
	env := setupTestEnv(t, true, nil)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		s := &model.Session{
			ID:        "s" + string(rune('a'+i)),
			Target:    model.TargetShell.String(),
			ShellPath: "/bin/sh",
			Status:    model.SessionStatusStarting,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base,
		}
		if err := env.repo.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	w := env.do(http.MethodGet, "/api/terminal/sessions?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list []SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "sc" || list[1].ID != "sb" {
		t.Errorf("Expected [sc sb], got %+v", list)
	}

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"0", "-1", "abc"} {
			w := env.do(http.MethodGet, "/api/terminal/sessions?limit="+q)
			if w.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: expected 400, got %d", q, w.Code)
			}
		}
	})
}

func TestSessionGet(t *testing.T) {
	env := setupTestEnv(t, true, nil)

	w := env.do(http.MethodGet, "/api/terminal/sessions/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if got := decodeError(t, w); got.Code != "SESSION_NOT_FOUND" {
		t.Errorf("Expected SESSION_NOT_FOUND, got %q", got.Code)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{1499 * time.Millisecond, "1s"},
		{61 * time.Second, "1m1s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestTerminalOverWebSocket runs a full attach: the record it leaves behind
// is then readable through the session routes.
func TestTerminalOverWebSocket(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	env := setupTestEnv(t, true, zap.New(core))

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/terminal/ws"

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if err := c.WriteMessage(websocket.TextMessage, []byte("ls\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !env.term.WaitForInput(3, 2*time.Second) {
		t.Fatal("Expected input to reach the terminal")
	}

	env.term.Emit([]byte("out\r\n"))
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if mt != websocket.BinaryMessage || string(data) != "out\r\n" {
		t.Errorf("Expected binary 'out\\r\\n', got %d %q", mt, data)
	}

	env.term.Exit(0)
	_, _, err = c.ReadMessage()
	if !websocket.IsCloseError(err, ws.CloseSessionEnded) {
		t.Errorf("Expected close %d, got %v", ws.CloseSessionEnded, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.manager.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	w := env.do(http.MethodGet, "/api/terminal/sessions")
	var list []SessionResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("Expected one recorded session, got %d", len(list))
	}
	if list[0].Status != string(model.SessionStatusClosed) || list[0].EndReason != "pty_exited" {
		t.Errorf("Expected closed pty_exited record, got %+v", list[0])
	}
	if list[0].PID == nil || *list[0].PID != 42 {
		t.Errorf("Expected PID 42, got %v", list[0].PID)
	}

	t.Run("upgrade not logged as request", func(t *testing.T) {
		for _, e := range logs.FilterMessage("request").All() {
			if strings.Contains(e.ContextMap()["path"].(string), "/ws") {
				t.Errorf("Expected upgrade to be skipped, got %v", e.ContextMap())
			}
		}
		if logs.FilterMessage("request").Len() == 0 {
			t.Error("Expected plain requests to be logged")
		}
	})
}
