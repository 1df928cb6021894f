package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/config"
	"github.com/expreg-labs/expreg/internal/schema"
)

var schemaJSON bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the field schema entries are validated against",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sch, err := schema.ForVersion(config.Get(config.KeySchemaVersion))
		if err != nil {
			return err
		}
		if schemaJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"version": sch.Version(),
				"rules":   sch.Rules(),
				"bounds":  sch.Bounds(),
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Schema %s (available: %s)\n\n", sch.Version(), strings.Join(schema.Versions, ", "))
		w := newTable(out)
		fmt.Fprintln(w, "KEY\tKIND\tREQUIREMENT\tSINCE\tNOTES")
		for _, r := range sch.Rules() {
			notes := r.Description
			switch {
			case r.AliasOf != "":
				notes = "use " + r.AliasOf
			case len(r.Enum) > 0:
				notes = strings.Join(r.Enum, " | ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Key, r.Kind, r.Requirement, r.Since, dash(notes))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		for _, b := range sch.Bounds() {
			line := fmt.Sprintf("%s < %s, both or neither", b.Min, b.Max)
			if b.RequiredWhen != nil {
				line += ", required when " + b.RequiredWhen.String()
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(schemaCmd)
}
