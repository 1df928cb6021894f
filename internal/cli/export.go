package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/expreg-labs/expreg/internal/export"
	"github.com/expreg-labs/expreg/internal/logging"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Write an entry as driver configuration",
	Long: `Write an entry as a flat configuration blob (yaml, json or env) after
validating it against the export schema. Without a name the running entry is
exported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "Output format: yaml, json or env")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var name string
	if len(args) == 1 {
		name = args[0]
	} else {
		active, ok := s.reg.ActiveRun()
		if !ok {
			return errors.New("no entry is running; name the entry to export")
		}
		name = active.Name
	}
	e, err := s.reg.Lookup(name)
	if err != nil {
		return err
	}
	if !e.Valid() {
		for _, d := range e.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", d)
		}
		return fmt.Errorf("%s has error diagnostics; fix the log before exporting", name)
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, e, format); err != nil {
		return fmt.Errorf("exporting %s: %w", name, err)
	}
	logging.FromContext(cmd.Context()).Info("entry exported", "entry", name, "format", string(format), "output", dash(exportOutput))
	return nil
}
