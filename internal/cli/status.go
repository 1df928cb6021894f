package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the log and show the active run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sum := status.Summarize(s.reg, s.source)
		if statusJSON {
			return printJSON(cmd.OutOrStdout(), sum)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Log:      %s\n", sum.Source)
		fmt.Fprintf(out, "Schema:   %s\n", sum.SchemaVersion)
		fmt.Fprintln(out, printer.Sprintf("Entries:  %d in %d sections (%d invalid)", sum.Entries, len(sum.Sections), sum.Invalid))
		fmt.Fprintln(out, printer.Sprintf("Issues:   %d errors, %d warnings", sum.Errors, sum.Warnings))
		fmt.Fprintf(out, "Active:   %s\n", dash(sum.ActiveRun))

		var states []string
		for _, st := range []string{"running", "pending", "completed", "unknown"} {
			if n := sum.States[st]; n > 0 {
				states = append(states, fmt.Sprintf("%s=%d", st, n))
			}
		}
		fmt.Fprintf(out, "States:   %s\n", dash(strings.Join(states, " ")))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}
