package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/expreg-labs/expreg/internal/branding"
	"github.com/expreg-labs/expreg/internal/config"
	"github.com/expreg-labs/expreg/internal/logging"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// printer formats counts and integer field values with thousands separators.
var printer = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` reads a hand-written experiment log, validates every configuration
entry against the field schema, tracks which experiment is running, and exports
entries as configuration for a training driver.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		l, err := logging.New(config.Get(config.KeyLogLevel), config.Get(config.KeyLogFormat), cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		cmd.SetContext(logging.WithLogger(cmd.Context(), l))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("file", "f", "experiments.log", "Experiment log to read")
	pf.String("schema-version", "", "Field schema version (default latest)")
	pf.String("db", "", "Provenance database path (default ~/.expreg/expreg.db)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	for key, flag := range map[string]string{
		config.KeyFile:          "file",
		config.KeySchemaVersion: "schema-version",
		config.KeyDB:            "db",
		config.KeyLogLevel:      "log-level",
		config.KeyLogFormat:     "log-format",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}
