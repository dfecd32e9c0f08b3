package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "episim",
		Short: "Epidemic simulation on small-world contact networks",
		Long: `episim runs SEIR epidemic simulations over a Watts-Strogatz contact
network, applies time-windowed interventions, and keeps a cumulative log
of every run with its exported data.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default ./episim.yaml when present)")
	rootCmd.PersistentFlags().String("results", "", "Results directory (overrides output.results_dir)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newGraphCmd(),
		newArchiveCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig builds the effective configuration for a command.
// Order: defaults -> --config file -> EPISIM_* environment -> global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if results, _ := cmd.Flags().GetString("results"); results != "" {
		cfg.Output.ResultsDir = results
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newCmdLogger returns the operational logger, writing to the command's stderr.
func newCmdLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}
