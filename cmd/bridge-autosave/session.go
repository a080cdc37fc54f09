package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/elodin/bridge"
	"github.com/elodin/bridge/internal/config"
	"github.com/elodin/bridge/pkg/autosave"
	"github.com/elodin/bridge/pkg/prompt"
	"github.com/elodin/bridge/pkg/status"
)

// app bundles what every command needs once flags are resolved.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	closeFn func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.ConsoleLogger.Level = level
	}
	if mode, _ := cmd.Flags().GetString("color"); mode != "" {
		cfg.Status.Color = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, closeFn, err := cfg.Logging.Prepare()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closeFn: closeFn}, nil
}

// askPassword fills a missing password interactively.
func (r *app) askPassword(ctx context.Context, driver prompt.Driver) error {
	if r.cfg.User == "" || r.cfg.Password != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("password for %s is not configured (set %s)", r.cfg.User, config.EnvPassword)
	}
	pwd, err := driver.Secret(ctx, prompt.Question{Title: fmt.Sprintf("Password for %s", r.cfg.User)})
	if err != nil {
		return err
	}
	r.cfg.Password = config.SecretString(pwd)
	return nil
}

func (r *app) terminal() *status.Terminal {
	switch r.cfg.Status.Color {
	case "always":
		return status.NewTerminal(os.Stdout, status.WithColor(true))
	case "never":
		return status.NewTerminal(os.Stdout, status.WithColor(false))
	}
	return status.NewTerminal(os.Stdout, status.WithColor(config.EnableColorOutput(os.Stdout)))
}

func (r *app) open(ctx context.Context, views ...autosave.StatusView) (*bridge.Session, error) {
	return bridge.Open(ctx, r.cfg,
		bridge.WithLogger(r.log),
		bridge.WithStatusViews(views...))
}

func (r *app) close(session *bridge.Session) error {
	var err error
	if session != nil {
		err = multierr.Append(err, session.Close())
	}
	return multierr.Append(err, r.closeFn())
}
