package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54"))
)

var runsColumns = []string{"Run ID", "Purpose", "Parameters Changed", "Duration (ms)", "Ever Infected", "Data File"}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List completed runs from the run log",
		Long: `List completed runs from the cumulative run log, oldest first.

Examples:
  episim runs
  episim runs --limit 5
  episim runs --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, err := runlog.Open(cmd.Context(), cfg.Output.ResultsDir)
			if err != nil {
				return fmt.Errorf("failed to open run log: %w", err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if entries == nil {
					entries = []runlog.Entry{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"runs":  entries,
					"count": len(entries),
					"log":   store.CSVPath(),
				})
			}

			if len(entries) == 0 {
				fmt.Fprintf(out, "No runs recorded in %s\n", cfg.Output.ResultsDir)
				return nil
			}
			if isTerminal(out) {
				fmt.Fprintln(out, renderRunsTable(entries))
				return nil
			}
			return writeRunsPlain(out, entries)
		},
	}

	cmd.Flags().Int("limit", 0, "Show only the most recent N runs")

	return cmd
}

func runRow(e runlog.Entry) []string {
	return []string{
		e.RunID,
		e.Purpose,
		e.ParamsChanged,
		strconv.FormatFloat(e.RuntimeMS, 'f', 2, 64),
		strconv.Itoa(e.EverInfected),
		e.DataFile,
	}
}

// renderRunsTable draws the run log as a bordered table for terminals.
func renderRunsTable(entries []runlog.Entry) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(runsColumns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, e := range entries {
		t.Row(runRow(e)...)
	}
	return t.Render()
}

// writeRunsPlain writes tab-aligned columns for pipes and files.
func writeRunsPlain(w io.Writer, entries []runlog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, col := range runsColumns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)
	for _, e := range entries {
		for i, cell := range runRow(e) {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
