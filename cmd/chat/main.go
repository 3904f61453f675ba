package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/client"
	applog "github.com/vovakirdan/messenger/internal/log"
)

var (
	configFile string
	serverURL  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "messenger",
	Short:         "Terminal client for the messenger server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to config.toml (default ~/.messenger/config.toml)")
	flags.StringVar(&serverURL, "server", "", "server URL, overrides the config file")
	flags.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "messenger: %v\n", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	path string
	cfg  *Config
	api  *client.API
	log  *zerolog.Logger
}

func loadEnv() (*env, error) {
	path := configFile
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}

	logger := applog.NewWithFormat(logLevel, "console", os.Stderr)
	return &env{
		path: path,
		cfg:  cfg,
		api:  client.NewAPI(cfg.Server.URL, client.WithToken(cfg.Auth.Token)),
		log:  logger,
	}, nil
}

// requireAuth loads the environment and fails when nobody is signed in.
func requireAuth() (*env, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if !e.cfg.signedIn() {
		return nil, errors.New("not signed in; run 'messenger login <username>' first")
	}
	return e, nil
}

func (e *env) self() chatsync.User {
	return chatsync.User{ID: e.cfg.Auth.UserID, Username: e.cfg.Auth.Username, Online: true}
}

func explain(err error) error {
	if errors.Is(err, client.ErrUnauthenticated) {
		return fmt.Errorf("%w; run 'messenger login <username>' again", err)
	}
	return err
}
