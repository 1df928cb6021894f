package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/schema"
	"github.com/expreg-labs/expreg/internal/status"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one entry with its fields and diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.reg.Lookup(args[0])
	if err != nil {
		return err
	}
	if showJSON {
		return printJSON(cmd.OutOrStdout(), status.ViewEntry(e))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  (section %q, line %d, %s)\n", e.Name, e.SectionTitle(), e.Line, e.State())
	if e.Marker != "" {
		fmt.Fprintf(out, "marker: %s\n", e.Marker)
	}
	fmt.Fprintln(out)

	w := newTable(out)
	fmt.Fprintln(w, "KEY\tVALUE\tKIND\tLINE")
	for _, f := range e.Fields {
		key := f.Key
		if f.Source != "" {
			key += " (" + f.Source + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", key, formatValue(f.Value), f.Value.Kind, f.Line)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(e.Diagnostics) > 0 {
		fmt.Fprintln(out)
		for _, d := range e.Diagnostics {
			fmt.Fprintf(out, "  %s\n", d)
		}
	}
	return nil
}

// formatValue renders integers with thousands separators and everything
// else in its canonical form.
func formatValue(v schema.Value) string {
	if v.Kind == schema.KindInt {
		return printer.Sprintf("%d", v.Int)
	}
	return v.String()
}
