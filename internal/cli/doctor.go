package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-coder/oraclebench/internal/llm/configbuilder"
	"github.com/animus-coder/oraclebench/internal/scenario"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := configbuilder.BuildRegistryFromConfig(cfg); err != nil {
				return fmt.Errorf("model registry: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Scenarios: %d, fallback mode: %s, metrics: %v\n", len(scenario.Names()), cfg.FallbackModeNormalized(), cfg.Server.MetricsEnabled)
			return nil
		},
	}
}
