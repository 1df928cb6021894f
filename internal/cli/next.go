package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next [prefix]",
	Short: "Print the next unused entry name",
	Long: `Print the next unused numbered entry name, e.g. NEW_13 after NEW_12.
Without a prefix the prefix of the last entry in the log is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.reg.NextName(prefix))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextCmd)
}
