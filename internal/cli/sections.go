package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/status"
)

var sectionsJSON bool

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List sections in the order their headers appear",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sum := status.Summarize(s.reg, s.source)
		if sectionsJSON {
			return printJSON(cmd.OutOrStdout(), sum.Sections)
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "SECTION\tENTRIES\tFIRST\tLAST")
		for _, sec := range s.reg.SectionsInOrder() {
			first, last := "-", "-"
			if n := sec.Len(); n > 0 {
				first, last = sec.Entries[0].Name, sec.Entries[n-1].Name
			}
			title := sec.Title
			if sec.Implicit {
				title += " (implicit)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", title, sec.Len(), first, last)
		}
		return w.Flush()
	},
}

func init() {
	sectionsCmd.Flags().BoolVar(&sectionsJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(sectionsCmd)
}
