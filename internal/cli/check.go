package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/expreg-labs/expreg/internal/config"
	"github.com/expreg-labs/expreg/internal/entry"
)

// errCheckFailed is returned when the log has error diagnostics, or
// warnings under --strict.
var errCheckFailed = errors.New("check failed")

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the experiment log and record the load",
	Long: `Parse the whole experiment log, print every diagnostic, and record the load
in the provenance store. Exits non-zero when any entry has an error-level
diagnostic or a record was rejected. With --strict, warnings fail too.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("strict", false, "Treat warnings as failures")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output in JSON format")
	if err := viper.BindPFlag(config.KeyStrict, checkCmd.Flags().Lookup("strict")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	LoadID   string   `json:"load_id"`
	Entries  int      `json:"entries"`
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
	Rejected []string `json:"rejected,omitempty"`
	OK       bool     `json:"ok"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.store.RecordLoad(cmd.Context(), s.source, s.reg)
	if err != nil {
		return fmt.Errorf("recording load: %w", err)
	}

	diags := s.reg.Diagnostics()
	res := checkResult{
		LoadID:   id,
		Entries:  s.reg.Len(),
		Errors:   countSeverity(diags, entry.SeverityError),
		Warnings: countSeverity(diags, entry.SeverityWarning),
	}
	for _, err := range unwrapJoined(s.loadErr) {
		res.Rejected = append(res.Rejected, err.Error())
	}
	strict := config.GetBool(config.KeyStrict)
	res.OK = res.Errors == 0 && len(res.Rejected) == 0 && (!strict || res.Warnings == 0)

	out := cmd.OutOrStdout()
	if checkJSON {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		if len(diags) > 0 {
			if err := printDiagnostics(cmd, diags); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		for _, r := range res.Rejected {
			fmt.Fprintf(out, "rejected: %s\n", r)
		}
		fmt.Fprintln(out, printer.Sprintf("%d entries, %d errors, %d warnings, %d rejected records",
			res.Entries, res.Errors, res.Warnings, len(res.Rejected)))
	}

	if !res.OK {
		return fmt.Errorf("%w: %d errors, %d warnings, %d rejected records", errCheckFailed, res.Errors, res.Warnings, len(res.Rejected))
	}
	return nil
}

// unwrapJoined flattens an errors.Join result.
func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
