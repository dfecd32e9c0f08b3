package main

import (
	"fmt"

	"github.com/nvandessel/episim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout so an agent can
launch runs and read the run log.

Tools:     episim_run, episim_runs, episim_summary, episim_config
Resources: episim://runs/log, episim://runs/{id}/summary

Operational logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newCmdLogger(cmd, cfg)

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "episim",
				Version: version,
				Base:    cfg,
				Logger:  logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger.Info("mcp server starting", "results_dir", cfg.Output.ResultsDir)
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
