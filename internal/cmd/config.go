package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/webhaul/webhaul/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration the server would run with, after applying
config file, environment variables, and defaults.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	out := map[string]any{
		"server": map[string]any{
			"host":             cfg.Server.Host,
			"port":             cfg.Server.Port,
			"read_timeout":     cfg.Server.ReadTimeout.String(),
			"write_timeout":    cfg.Server.WriteTimeout.String(),
			"idle_timeout":     cfg.Server.IdleTimeout.String(),
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"profile": cfg.Logging.Profile,
		},
		"queue": map[string]any{
			"concurrency":   cfg.Queue.Concurrency,
			"poll_interval": cfg.Queue.PollInterval.String(),
			"retention":     cfg.Queue.Retention.String(),
			"data_dir":      cfg.Queue.DataDir,
		},
		"targets": map[string]any{
			"allow": cfg.Targets.Allow,
			"deny":  cfg.Targets.Deny,
		},
		"archive": map[string]any{
			"enabled":          cfg.Archive.Enabled,
			"bucket":           cfg.Archive.Bucket,
			"prefix":           cfg.Archive.Prefix,
			"region":           cfg.Archive.Region,
			"endpoint":         cfg.Archive.Endpoint,
			"force_path_style": cfg.Archive.ForcePathStyle,
		},
		"admission": map[string]any{
			"rate_per_second": cfg.Admission.RatePerSecond,
			"burst":           cfg.Admission.Burst,
		},
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, _ = os.Stdout.Write(data)
	return nil
}
