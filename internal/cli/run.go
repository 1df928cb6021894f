package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/registry"
)

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Mark an entry as the running experiment",
	Long: `Mark an entry as running. The previously running entry, if any, is
completed first. The change is recorded in the provenance store; the log file
itself is not modified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		trs, err := s.reg.MarkRunning(args[0])
		if err != nil {
			return err
		}
		if len(trs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already running.\n", args[0])
			return nil
		}
		printTransitions(cmd, trs...)
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish <name>",
	Short: "Mark the running experiment as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		tr, err := s.reg.Complete(args[0])
		if err != nil {
			return err
		}
		printTransitions(cmd, tr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(finishCmd)
}

func printTransitions(cmd *cobra.Command, trs ...registry.Transition) {
	for _, tr := range trs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tr)
	}
}
