package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/branding"
	"github.com/expreg-labs/expreg/internal/schema"
)

var (
	versionShort bool
	versionJSON  bool
)

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print version number only")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version info as JSON")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, buildVersion)
			return nil
		}

		if versionJSON {
			return printJSON(out, map[string]string{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
				"schema":  schema.Latest,
			})
		}

		fmt.Fprintf(out, "%s version %s (commit: %s, built: %s, schema: %s)\n",
			branding.CLIName(), buildVersion, buildCommit, buildDate, schema.Latest)
		return nil
	},
}
