package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/expreg-labs/expreg/internal/config"
	"github.com/expreg-labs/expreg/internal/logging"
	"github.com/expreg-labs/expreg/internal/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry over HTTP until interrupted",
	Long: `Load the experiment log and serve it read-only:

  GET /status          summary and active run
  GET /entries         all entries (?section=, ?state= filters)
  GET /entries/{name}  one entry
  GET /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		srv := status.NewServer(s.reg, s.source, logging.FromContext(ctx))
		return srv.Run(ctx, config.Get(config.KeyServeAddr))
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8087", "Listen address")
	if err := viper.BindPFlag(config.KeyServeAddr, serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}
