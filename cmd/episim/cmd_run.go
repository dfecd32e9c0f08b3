package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and record it in the run log",
		Long: `Run one SEIR simulation from the effective configuration, export its
data files into the results directory and append it to the run log.

Examples:
  episim run
  episim run --purpose "High transmission" --set virus.infect_rate=0.9
  episim run --config scenario.yaml --seed 42
  episim run --config scenario.yaml --watch   # re-run whenever the file changes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				_, err := runOnce(cmd.Context(), cmd)
				return err
			}

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.DefaultFile
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if _, err := runOnce(ctx, cmd); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Run failed: %v\n", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for changes. Press Ctrl-C to stop.\n", path)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return watchFile(ctx, path, watchDebounce, newCmdLogger(cmd, cfg), func() {
				if _, err := runOnce(ctx, cmd); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Run failed: %v\n", err)
				}
			})
		},
	}

	cmd.Flags().String("purpose", "", "Purpose recorded in the run log")
	cmd.Flags().String("params-changed", "", "Parameter changes recorded in the run log")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 derives one from the clock)")
	cmd.Flags().Int("days", 0, "Number of simulated days")
	cmd.Flags().StringArray("set", nil, "Override a configuration key (key=value, repeatable)")
	cmd.Flags().Bool("watch", false, "Re-run whenever the configuration file changes")

	return cmd
}

// runConfig applies the run command's flags on top of the effective configuration.
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("purpose"); v != "" {
		cfg.Simulation.Purpose = v
	}
	if v, _ := cmd.Flags().GetString("params-changed"); v != "" {
		cfg.Simulation.ParamsChanged = v
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	if cmd.Flags().Changed("days") {
		cfg.Simulation.Duration, _ = cmd.Flags().GetInt("days")
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, &models.ConfigError{Field: kv, Reason: "expected key=value"}
		}
		if err := cfg.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runOnce performs one run with the command's configuration and prints the report.
func runOnce(ctx context.Context, cmd *cobra.Command) (*runner.Report, error) {
	cfg, err := runConfig(cmd)
	if err != nil {
		return nil, err
	}
	rep, err := runner.New(cfg, runner.WithLogger(newCmdLogger(cmd, cfg))).Run(ctx)
	if err != nil {
		return nil, err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		return rep, json.NewEncoder(cmd.OutOrStdout()).Encode(rep)
	}
	printReport(cmd.OutOrStdout(), rep)
	return rep, nil
}

func printReport(w io.Writer, rep *runner.Report) {
	s := rep.Summary
	fmt.Fprintf(w, "Run %s complete: %s, %d individuals, %d days (seed %d, %.2f ms)\n",
		rep.RunID, s.Virus, s.PopulationSize, s.DurationDays, rep.Seed, s.RuntimeMS)
	fmt.Fprintf(w, "  Final state:   S=%d E=%d I=%d R=%d\n",
		s.FinalState["S"], s.FinalState["E"], s.FinalState["I"], s.FinalState["R"])
	fmt.Fprintf(w, "  Ever infected: %d of %d\n", s.EverInfected, s.PopulationSize)
	fmt.Fprintln(w, "  Files:")
	for _, f := range rep.Files {
		fmt.Fprintf(w, "    %-11s %s\n", f.Kind, f.Path)
	}
	if len(rep.Pruned) > 0 {
		fmt.Fprintf(w, "  Pruned %d old archive(s)\n", len(rep.Pruned))
	}
}
