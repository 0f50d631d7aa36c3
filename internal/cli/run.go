package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cookbook "github.com/hupe1980/agentcookbook"
	"github.com/hupe1980/agentcookbook/engine"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/model/provider"
)

// newCookbook opens the configured session store and registers the apps on
// it. The returned func closes the store.
func (a *app) newCookbook(ctx context.Context, llm model.Model) (*cookbook.Cookbook, func(), error) {
	store, scheme, err := a.openSessionStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	cb := cookbook.New(llm, func(o *cookbook.Options) {
		o.EngineConfig = engine.Config{
			MaxConcurrentInvocations: a.cfg.Runner.MaxConcurrentInvocations,
			EventBufferSize:          a.cfg.Runner.EventBufferSize,
			MaxModelCalls:            a.cfg.Runner.MaxModelCalls,
		}
		o.SessionStore = store
		o.SessionBackend = scheme
		o.Logger = a.logger
	})
	return cb, func() { a.closeStore(store) }, nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		userID    string
		sessionID string
		showEvent bool
	)

	cmd := &cobra.Command{
		Use:   "run <app> <query>",
		Short: "Ask a tutorial agent",
		Long: `Run one query against a tutorial app and print the final answer.

Example:
  cookbook run finance_assistant "How much is $10,000 after 5 years at 6%?"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			llm, err := provider.New(ctx, a.cfg.Model)
			if err != nil {
				return err
			}

			cb, done, err := a.newCookbook(ctx, llm)
			if err != nil {
				return err
			}
			defer done()

			answer, err := cb.Ask(ctx, args[0], userID, sessionID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showEvent {
				enc := json.NewEncoder(out)
				for _, ev := range answer.Events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
			}

			fmt.Fprintln(out, answer.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", answer.SessionID)

			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli_user", "user id")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().BoolVar(&showEvent, "events", false, "print every event as JSON")

	return cmd
}

func newAppsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the tutorial apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			llm, err := provider.New(cmd.Context(), a.cfg.Model)
			if err != nil {
				return err
			}

			cb, done, err := a.newCookbook(cmd.Context(), llm)
			if err != nil {
				return err
			}
			defer done()

			for _, name := range cb.Apps() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
