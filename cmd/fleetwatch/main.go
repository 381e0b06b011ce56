package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unklstewy/fleetwatch/internal/log"
	"github.com/unklstewy/fleetwatch/pkg/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleetwatch",
	Short: "Fleetwatch - live flight position tracking",
	Long: `Fleetwatch keeps a fleet of tracked flights up to date from a live
position provider, falls back to simulated movement when the provider is
unavailable, and broadcasts every committed update to live subscribers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Fleetwatch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.json", "Path to configuration file (JSON or YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the configuration named by --config and sets up
// logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: cfg.Logging.JSON,
		Output:     os.Stderr,
	})
	return cfg, nil
}
