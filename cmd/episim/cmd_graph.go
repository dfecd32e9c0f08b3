package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <run-id>",
		Short: "Visualize the final contact network of a run",
		Long: `Replay a recorded run from its configuration and output the final contact
network in DOT (Graphviz), JSON, or an interactive HTML report.

Examples:
  episim graph 004 | dot -Tsvg > network.svg
  episim graph 004 --format json
  episim graph 004 --format html -o report.html
  episim graph 004 --serve`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}
			// --serve implies html
			if serve {
				format = visualization.FormatHTML
			}

			n, err := runlog.ParseRunID(args[0])
			if err != nil {
				return err
			}
			runID := runlog.FormatRunID(n)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pop, result, err := runner.Replay(cmd.Context(), cfg.Output.ResultsDir, runID, newCmdLogger(cmd, cfg))
			if err != nil {
				return fmt.Errorf("replaying run %s: %w", runID, err)
			}
			title := fmt.Sprintf("Epidemic Simulation: %s (run %s)", result.Summary.Virus, runID)

			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(pop))

			case visualization.FormatJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(visualization.RenderJSON(pop)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}

			case visualization.FormatHTML:
				if serve {
					return runGraphServer(cmd, title, pop, result.History, noOpen)
				}
				return writeStaticHTML(cmd, title, pop, result.History, runID, output, noOpen)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local server with the report and a per-day API")

	return cmd
}

// writeStaticHTML renders the report to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, title string, pop *population.Population, history []models.DayCounts, runID, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(title, pop, history)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), fmt.Sprintf("episim-run-%s.html", runID))
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer serves the report locally and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, title string, pop *population.Population, history []models.DayCounts, noOpen bool) error {
	srv := visualization.NewServer(title, pop, history)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	addr, err := waitForAddr(srv, errCh, 3*time.Second)
	if err != nil {
		return err
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Report server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// waitForAddr polls until the server is listening, it fails, or timeout passes.
func waitForAddr(srv *visualization.Server, errCh <-chan error, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if addr := srv.Addr(); addr != "" {
			return addr, nil
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = fmt.Errorf("server stopped")
			}
			return "", fmt.Errorf("server failed to start: %w", err)
		case <-ctx.Done():
			return "", fmt.Errorf("server failed to start")
		case <-ticker.C:
		}
	}
}
