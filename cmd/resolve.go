package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/roster-cli/internal/model"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Verify a single hospital's identity and address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		address, _ := cmd.Flags().GetString("address")

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		verdict := initResolver(cfg).Resolve(cmd.Context(), name, address)
		formatVerdict(os.Stdout, verdict)
		return nil
	},
}

func formatVerdict(out io.Writer, v model.LocationVerdict) {
	tw := newTable(out, "FIELD", "VALUE")
	tw.AppendRow([]any{"Verified", v.Verified})
	tw.AppendRow([]any{"Source", v.Source})
	if v.Verified {
		tw.AppendRow([]any{"Name", v.CanonicalName})
		tw.AppendRow([]any{"Address", v.CanonicalAddress})
		tw.AppendRow([]any{"Confidence", fmt.Sprintf("%.1f", v.ConfidenceScore)})
		if lat, lng, ok := v.Coordinates(); ok {
			tw.AppendRow([]any{"Coordinates", fmt.Sprintf("%.6f, %.6f", lat, lng)})
		}
	} else {
		tw.AppendRow([]any{"Error", v.Error})
	}
	tw.Render()
}

func init() {
	resolveCmd.Flags().String("name", "", "hospital name")
	resolveCmd.Flags().String("address", "", "hospital address")
	_ = resolveCmd.MarkFlagRequired("name")
	_ = resolveCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(resolveCmd)
}
