package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nvandessel/episim/internal/archive"
	"github.com/nvandessel/episim/internal/constants"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and prune run archives",
		Long: `Each run is archived as a compressed file holding its summary,
configuration, daily counts, events and intervention decisions.

Examples:
  episim archive list
  episim archive verify 004
  episim archive show results/archives/run_004.episim.gz
  episim archive prune --keep 5 --max-age 30d`,
	}

	cmd.AddCommand(
		newArchiveListCmd(),
		newArchiveVerifyCmd(),
		newArchiveShowCmd(),
		newArchivePruneCmd(),
	)

	return cmd
}

// archiveDir returns the archive directory for the effective configuration.
func archiveDir(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Output.ResultsDir, constants.ArchiveDir), nil
}

// resolveArchive accepts either a run id or a path to an archive file.
func resolveArchive(cmd *cobra.Command, arg string) (string, error) {
	if strings.HasSuffix(arg, constants.ArchiveExt) || strings.ContainsRune(arg, filepath.Separator) {
		return arg, nil
	}
	n, err := runlog.ParseRunID(arg)
	if err != nil {
		return "", fmt.Errorf("%q is neither a run id nor an archive file", arg)
	}
	dir, err := archiveDir(cmd)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, archive.FileName(runlog.FormatRunID(n))), nil
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives, newest run first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := archiveDir(cmd)
			if err != nil {
				return err
			}
			archives, err := archive.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list archives: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if archives == nil {
					archives = []archive.Info{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"archives":    archives,
					"total_count": len(archives),
					"directory":   dir,
				})
			}

			if len(archives) == 0 {
				fmt.Fprintf(out, "No archives found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "Archives in %s:\n", dir)
			var totalSize int64
			for _, a := range archives {
				totalSize += a.Size
				fmt.Fprintf(out, "  run %s  %s  %s\n", a.RunID, a.CreatedAt.Format("2006-01-02 15:04:05"), formatSize(a.Size))
			}
			fmt.Fprintf(out, "\nTotal: %d archive(s), %s\n", len(archives), formatSize(totalSize))
			return nil
		},
	}
}

func newArchiveVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run-id|file>",
		Short: "Verify archive integrity",
		Long:  `Verify the integrity of an archive by checking its SHA-256 checksum.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			path, err := resolveArchive(cmd, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := archive.VerifyChecksum(path); err != nil {
				if jsonOut {
					json.NewEncoder(out).Encode(map[string]any{
						"file":    path,
						"valid":   false,
						"error":   err.Error(),
						"message": "Checksum verification FAILED",
					})
				} else {
					fmt.Fprintf(out, "FAILED: %v\n", err)
					fmt.Fprintf(out, "  File: %s\n", path)
				}
				return fmt.Errorf("checksum verification failed")
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"file":    path,
					"valid":   true,
					"message": "Checksum OK",
				})
			}
			fmt.Fprintf(out, "OK: checksum verified\n")
			fmt.Fprintf(out, "  File: %s\n", path)
			return nil
		},
	}
}

func newArchiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id|file>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			path, err := resolveArchive(cmd, args[0])
			if err != nil {
				return err
			}
			header, payload, err := archive.Read(path)
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"header":    header,
					"summary":   payload.Summary,
					"decisions": len(payload.Decisions),
				})
			}

			s := payload.Summary
			fmt.Fprintf(out, "Run %s (%s)\n", header.RunID, header.RunUUID)
			fmt.Fprintf(out, "  Archived:      %s\n", header.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Purpose:       %s\n", s.Purpose)
			fmt.Fprintf(out, "  Changed:       %s\n", s.ParamsChanged)
			fmt.Fprintf(out, "  Virus:         %s\n", s.Virus)
			fmt.Fprintf(out, "  Population:    %d over %d days (seed %d)\n", s.PopulationSize, s.DurationDays, s.Seed)
			fmt.Fprintf(out, "  Final state:   S=%d E=%d I=%d R=%d\n",
				s.FinalState["S"], s.FinalState["E"], s.FinalState["I"], s.FinalState["R"])
			fmt.Fprintf(out, "  Ever infected: %d\n", s.EverInfected)
			fmt.Fprintf(out, "  Records:       %d days, %d events, %d decisions\n",
				header.DayCount, header.EventCount, len(payload.Decisions))
			return nil
		},
	}
}

func newArchivePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old archives",
		Long: `Delete archives not kept by the retention policy. An archive is kept
when it is among the newest --keep runs or younger than --max-age.
Without flags the configured output.keep_archives applies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			maxAge, _ := cmd.Flags().GetString("max-age")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			keep := cfg.Output.KeepArchives
			if cmd.Flags().Changed("keep") {
				keep, _ = cmd.Flags().GetInt("keep")
			}

			var policy archive.RetentionPolicy = &archive.CountPolicy{MaxCount: keep}
			if maxAge != "" {
				d, err := archive.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policies := []archive.RetentionPolicy{&archive.AgePolicy{MaxAge: d}}
				if keep > 0 {
					policies = append(policies, &archive.CountPolicy{MaxCount: keep})
				}
				policy = &archive.CompositePolicy{Policies: policies}
			}

			dir := filepath.Join(cfg.Output.ResultsDir, constants.ArchiveDir)
			deleted, err := archive.ApplyRetention(dir, policy)
			if err != nil {
				return fmt.Errorf("failed to prune archives: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"deleted": deleted,
					"count":   len(deleted),
				})
			}
			if len(deleted) == 0 {
				fmt.Fprintln(out, "Nothing to prune")
				return nil
			}
			for _, p := range deleted {
				fmt.Fprintf(out, "Deleted %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep the newest N archives (0 keeps all unless --max-age is set)")
	cmd.Flags().String("max-age", "", "Keep archives younger than this (e.g. 72h, 30d, 2w)")

	return cmd
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
