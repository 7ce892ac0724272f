package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect reconciliation sessions",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sessions, err := st.ListSessions(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessions(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// -- sessions providers --

var sessionsProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List reconciled providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		sessionID, _ := cmd.Flags().GetString("session")
		hospital, _ := cmd.Flags().GetString("hospital")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		providers, err := st.ListProviders(ctx, store.ProviderFilter{
			Status:    model.Status(status),
			SessionID: sessionID,
			Hospital:  hospital,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions providers")
		}
		if len(providers) == 0 {
			fmt.Fprintln(os.Stderr, "No providers found.")
			return nil
		}
		formatProviders(os.Stdout, providers)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "maximum sessions to list")

	sessionsProvidersCmd.Flags().String("status", "", "filter by status (verified, \"updated details\", \"human verification needed\")")
	sessionsProvidersCmd.Flags().String("session", "", "filter by session id")
	sessionsProvidersCmd.Flags().String("hospital", "", "filter by hospital name")
	sessionsProvidersCmd.Flags().Int("limit", 100, "maximum providers to list")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsProvidersCmd)
	rootCmd.AddCommand(sessionsCmd)
}
