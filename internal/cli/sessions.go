package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcookbook/core"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the configured session service",
	}

	var userID string

	list := &cobra.Command{
		Use:   "list <app>",
		Short: "List the sessions of an app",
		Long: `List the sessions of an app, optionally narrowed to one user.

Example:
  SESSION_SERVICE_URI=redis://localhost:6379/0 cookbook sessions list finance_assistant`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.openSessionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			sessions, err := store.List(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tUSER\tSTATE KEYS\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.UserID, len(s.StateSnapshot()), s.Updated.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&userID, "user", "", "only sessions of this user")

	del := &cobra.Command{
		Use:   "delete <app> <user> <session>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.openSessionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			key := core.SessionKey{AppName: args[0], UserID: args[1], SessionID: args[2]}
			if err := store.Delete(cmd.Context(), key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key.SessionID)
			return nil
		},
	}

	cmd.AddCommand(list, del)

	return cmd
}
