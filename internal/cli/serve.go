package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/animus-coder/oraclebench/internal/daemon"
	"github.com/animus-coder/oraclebench/internal/logging"
)

// NewServeCmd starts the evaluation daemon.
func NewServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := daemon.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}
}
