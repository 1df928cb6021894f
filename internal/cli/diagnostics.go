package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/registry"
)

var (
	diagSeverity string
	diagKind     string
	diagJSON     bool
)

var diagnosticsCmd = &cobra.Command{
	Use:     "diagnostics",
	Aliases: []string{"diag"},
	Short:   "List every entry diagnostic in log order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		diags := filterDiagnostics(s.reg.Diagnostics(), diagSeverity, diagKind)
		if diagJSON {
			if diags == nil {
				diags = []registry.EntryDiagnostic{}
			}
			return printJSON(cmd.OutOrStdout(), diags)
		}
		if len(diags) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No diagnostics.")
			return nil
		}
		return printDiagnostics(cmd, diags)
	},
}

func init() {
	diagnosticsCmd.Flags().StringVar(&diagSeverity, "severity", "", "Only diagnostics of this severity (warning, error)")
	diagnosticsCmd.Flags().StringVar(&diagKind, "kind", "", "Only diagnostics of this kind (e.g. UnrecognizedField)")
	diagnosticsCmd.Flags().BoolVar(&diagJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(diagnosticsCmd)
}

func filterDiagnostics(in []registry.EntryDiagnostic, severity, kind string) []registry.EntryDiagnostic {
	var out []registry.EntryDiagnostic
	for _, d := range in {
		if severity != "" && string(d.Severity) != severity {
			continue
		}
		if kind != "" && string(d.Kind) != kind {
			continue
		}
		out = append(out, d)
	}
	return out
}

func printDiagnostics(cmd *cobra.Command, diags []registry.EntryDiagnostic) error {
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ENTRY\tLINE\tSEVERITY\tKIND\tKEY\tMESSAGE")
	for _, d := range diags {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", d.Entry, d.Line, d.Severity, d.Kind, dash(d.Key), d.Message)
	}
	return w.Flush()
}

func countSeverity(diags []registry.EntryDiagnostic, sev entry.Severity) int {
	n := 0
	for _, d := range diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}
