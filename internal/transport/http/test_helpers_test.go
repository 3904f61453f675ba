package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/messenger/internal/auth"
	"github.com/vovakirdan/messenger/internal/config"
	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/presence"
	"github.com/vovakirdan/messenger/internal/proto"
	"github.com/vovakirdan/messenger/internal/service/messages"
	"github.com/vovakirdan/messenger/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	auth *auth.Service
	hub  *core.Hub
}

// startTestServer runs the full HTTP stack over a temporary SQLite database.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "http.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	disabledLogger := zerolog.Nop()
	tracker := presence.NewMemory()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.WSRateLimit = 0

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	msgService := messages.New(st, tracker, &disabledLogger)

	hub := core.NewHub(tracker, msgService, &disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, msgService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, hub: hub}
}

func (e *testEnv) register(t *testing.T, username string) proto.AuthResponse {
	t.Helper()
	var out proto.AuthResponse
	status := e.do(t, http.MethodPost, "/api/register", "", proto.Credentials{Username: username, Password: "password123"}, &out)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	return out
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
