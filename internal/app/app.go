package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/messenger/internal/auth"
	"github.com/vovakirdan/messenger/internal/config"
	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/presence"
	"github.com/vovakirdan/messenger/internal/service/messages"
	"github.com/vovakirdan/messenger/internal/store"
	"github.com/vovakirdan/messenger/internal/store/postgres"
	"github.com/vovakirdan/messenger/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/messenger/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	closers         []func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	tracker, err := a.openPresence(ctx, cfg.Presence)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init presence: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	}
	authService := auth.NewService(st, jwtConfig)
	msgService := messages.New(st, tracker, logger)

	a.hub = core.NewHub(tracker, msgService, logger)
	a.server = transporthttp.NewServer(a.hub, authService, msgService, cfg, logger)

	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", cfg.Driver).Msg("database initialized")
		return st, nil
	case config.DriverSQLite, "":
		st, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", config.DriverSQLite).Str("db_path", cfg.Path).Msg("database initialized")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (a *App) openPresence(ctx context.Context, cfg config.PresenceConfig) (presence.Tracker, error) {
	switch cfg.Backend {
	case config.PresenceRedis:
		r, err := presence.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		a.log.Info().Str("backend", cfg.Backend).Msg("presence initialized")
		return r, nil
	case config.PresenceMemory, "":
		return presence.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Backend)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()
	// The hub reports every connection gone to the tracker before the
	// backends it talks to are closed.
	stopAndCleanup := func() {
		stopHub()
		<-hubDone
		a.cleanup()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopAndCleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Releasing push clients first lets their handlers return so Shutdown can finish.
		stopHub()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			stopAndCleanup()
			return err
		}

		stopAndCleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
		a.store = nil
	}
}
