package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/messenger/internal/auth"
	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/config"
	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/presence"
	"github.com/vovakirdan/messenger/internal/service/messages"
	"github.com/vovakirdan/messenger/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/messenger/internal/transport/http"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

var nopLogger = zerolog.Nop()

// startServer runs the whole server stack over a temporary SQLite file.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.WSRateLimit = 0

	tracker := presence.NewMemory()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("client-test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	msgService := messages.New(st, tracker, &nopLogger)
	hub := core.NewHub(tracker, msgService, &nopLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ts := httptest.NewServer(transporthttp.NewServer(hub, authService, msgService, &cfg, &nopLogger).Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts
}

// signUp registers username and returns an API carrying its token.
func signUp(t *testing.T, ts *httptest.Server, username string) (*API, chatsync.User) {
	t.Helper()
	api := NewAPI(ts.URL, WithHTTPClient(ts.Client()))
	resp, err := api.Register(context.Background(), username, "password123")
	require.NoError(t, err)
	return api, userFromProto(resp.User)
}

// startSession starts a push-enabled session and waits until it is connected.
func startSession(t *testing.T, api *API, self chatsync.User) *Session {
	t.Helper()
	s := NewSession(api, self, &nopLogger, WithPushConfig(PushConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}))
	s.Start(context.Background())
	t.Cleanup(s.Close)
	require.Eventually(t, func() bool { return s.PushState() == StateConnected }, waitFor, tick)
	return s
}
