package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/roster-cli/internal/config"
	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/session"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a doctor roster against hospital websites",
	Long:  "Reads a CSV or XLSX roster, verifies each hospital and reconciles its doctors, streaming results to the output CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rosterPath, _ := cmd.Flags().GetString("roster")
		outputPath, _ := cmd.Flags().GetString("output")
		fixtures, _ := cmd.Flags().GetString("fixtures")
		sessionID, _ := cmd.Flags().GetString("session-id")

		if outputPath == "" {
			outputPath = cfg.Pipeline.OutputPath
		}
		if fixtures != "" {
			cfg.Collaborator.Mode = config.ModeFixture
			cfg.Collaborator.FixturePath = fixtures
		}
		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collab, err := initCollaborator(cfg)
		if err != nil {
			return err
		}

		driver := session.NewDriver(st, collab)
		id, err := driver.Start(ctx, session.StartRequest{
			RosterPath: rosterPath,
			OutputPath: outputPath,
			SessionID:  sessionID,
		})
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		sess, err := driver.Wait(ctx, id)
		if err != nil {
			return eris.Wrap(err, "reconcile: wait")
		}
		if sess.Status == model.SessionFailed {
			return eris.Errorf("reconcile: session %s failed: %s", id, sess.Error)
		}

		fmt.Fprintf(os.Stdout, "Session %s complete. Results written to %s\n", id, outputPath)
		formatStats(os.Stdout, sess.Stats)
		return nil
	},
}

func init() {
	f := reconcileCmd.Flags()
	f.String("roster", "", "roster file (.csv or .xlsx)")
	f.String("output", "", "output CSV (default from config)")
	f.String("fixtures", "", "answer hospitals from a YAML fixture file instead of live lookups")
	f.String("session-id", "", "session id (default: generated)")
	_ = reconcileCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(reconcileCmd)
}
