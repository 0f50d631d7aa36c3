// Package cli implements the cookbook command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcookbook/config"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/session/registry"
)

const version = "0.1.0"

// app carries the state shared by all commands.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger logging.Logger
}

// NewRootCmd builds the cookbook command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cookbook",
		Short: "Agent cookbook - tutorial agents, API server and tools",
		Long: `cookbook runs the tutorial agents from the command line and serves the
production deployment agent over HTTP and websockets.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./cookbook.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newAppsCmd(a),
		newSessionsCmd(a),
		newVoiceCmd(a),
	)

	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) load(logOut io.Writer) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, err := logging.New(logging.Config{
		Backend: cfg.Logging.Backend,
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  logOut,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openSessionStore resolves the configured session service URI. It returns
// the store and its scheme.
func (a *app) openSessionStore(ctx context.Context) (core.SessionStore, string, error) {
	uri := a.cfg.Session.URI
	store, err := registry.Open(ctx, uri, func(o *registry.Options) {
		o.TTL = a.cfg.SessionTTL()
		o.Logger = a.logger
	})
	if err != nil {
		return nil, "", err
	}

	scheme := "memory"
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		scheme = strings.ToLower(u.Scheme)
	}
	return store, scheme, nil
}

// closeStore releases stores holding a connection, such as the redis client
// or the sqlite handle.
func (a *app) closeStore(store core.SessionStore) {
	c, ok := store.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		a.logger.Warn("session.store.close_failed", "error", err.Error())
	}
}
