package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/logging"
	"github.com/expreg-labs/expreg/internal/scaffold"
)

var (
	newName    string
	newPrefix  string
	newFrom    string
	newSection string
	newMarker  string
	newSet     []string
	newDryRun  bool
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Append a new entry to the experiment log",
	Long: `Append a new entry to the experiment log. The entry takes the next free
name and copies the fields of the last entry (or --from), with --set overrides
applied. The result is checked against the field schema; problems are printed
as warnings and the entry is still written unless --dry-run is given.`,
	Example: `  expreg new --set epochs=50 --set "hidden_sizes=256 x 3"
  expreg new --from NEW_4 --section "MEM UNITS" --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := scaffold.Generate(s.reg, scaffold.Options{
			Name:    newName,
			Prefix:  newPrefix,
			From:    newFrom,
			Section: newSection,
			Marker:  newMarker,
			Set:     newSet,
		})
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}

		if newDryRun {
			fmt.Fprint(cmd.OutOrStdout(), res.Text)
			return nil
		}
		if err := scaffold.Append(s.source, res.Text); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).Info("entry appended", "entry", res.Name, "log", s.source)
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", res.Name, s.source)
		return nil
	},
}

func init() {
	newCmd.Flags().StringVar(&newName, "name", "", "Entry name (default: next free name)")
	newCmd.Flags().StringVar(&newPrefix, "prefix", "", "Name prefix (default: prefix of the last entry)")
	newCmd.Flags().StringVar(&newFrom, "from", "", "Copy fields from this entry (default: last entry)")
	newCmd.Flags().StringVar(&newSection, "section", "", "Start a new section with this title")
	newCmd.Flags().StringVar(&newMarker, "marker", "", "Header marker, e.g. \"<-- next\"")
	newCmd.Flags().StringArrayVar(&newSet, "set", nil, "Override a field, key=value (repeatable)")
	newCmd.Flags().BoolVar(&newDryRun, "dry-run", false, "Print the entry without writing it")
	rootCmd.AddCommand(newCmd)
}
