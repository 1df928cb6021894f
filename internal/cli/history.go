package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show how an entry changed across recorded loads",
	Long: `Show every snapshot of an entry recorded by "check", with the fields that
changed since the previous snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		snaps, err := s.store.History(cmd.Context(), s.source, args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(cmd.OutOrStdout(), snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No recorded loads of %s. Run '%s check' first.\n", args[0], rootCmd.Name())
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "LOADED\tLOAD\tSTATE\tVALID\tCHANGED")
		var prev map[string]string
		for _, snap := range snaps {
			changed := "-"
			if prev != nil {
				changed = dash(strings.Join(changedKeys(prev, snap.Fields), ", "))
			}
			prev = snap.Fields
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", snap.LoadedAt.Local().Format(time.DateTime), snap.LoadID[:8], snap.RunState, snap.Valid, changed)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(historyCmd)
}

// changedKeys lists keys added, removed or edited between two snapshots.
func changedKeys(before, after map[string]string) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
