package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/status"
)

var (
	listSection string
	listState   string
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries in log order",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listSection, "section", "", "Only entries of this section")
	listCmd.Flags().StringVar(&listState, "state", "", "Only entries in this run state (unknown, pending, running, completed)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listState != "" {
		if _, err := entry.ParseRunState(listState); err != nil {
			return err
		}
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var entries []*entry.Entry
	for _, e := range s.reg.Entries() {
		if listSection != "" && e.SectionTitle() != listSection {
			continue
		}
		if listState != "" && e.State().String() != listState {
			continue
		}
		entries = append(entries, e)
	}

	if listJSON {
		views := make([]status.EntryView, len(entries))
		for i, e := range entries {
			views[i] = status.ViewEntry(e)
		}
		return printJSON(cmd.OutOrStdout(), views)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching entries.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "NAME\tSECTION\tSTATE\tVALID\tFIELDS\tISSUES")
	for _, e := range entries {
		valid := "yes"
		if !e.Valid() {
			valid = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", e.Name, e.SectionTitle(), e.State(), valid, len(e.Fields), len(e.Diagnostics))
	}
	return w.Flush()
}
