package mcp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/export"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/pathutil"
	"github.com/nvandessel/episim/internal/ratelimit"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/sanitize"
	"github.com/nvandessel/episim/internal/simulation"
)

const (
	runLogURI         = "episim://runs/log"
	runSummaryPrefix  = "episim://runs/"
	runSummarySuffix  = "/summary"
	runSummaryPattern = runSummaryPrefix + "{id}" + runSummarySuffix
)

// registerTools registers all episim MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_run",
		Description: "Run one epidemic simulation from the server's base configuration plus optional overrides, and record it in the run log",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_runs",
		Description: "List completed runs from the cumulative run log",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_summary",
		Description: "Get the exported summary of a completed run, optionally with its daily S/E/I/R counts",
	}, s.handleSummary)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_config",
		Description: "Show the base configuration runs start from",
	}, s.handleConfig)

	return nil
}

// registerResources registers the run log resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         runLogURI,
		Name:        "episim-run-log",
		Description: "Cumulative log of completed runs as CSV, one row per run.",
		MIMEType:    "text/csv",
	}, s.handleRunLogResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runSummaryPattern,
		Name:        "episim-run-summary",
		Description: "Exported summary of one run as JSON.",
		MIMEType:    "application/json",
	}, s.handleRunSummaryResource)

	return nil
}

// handleRunLogResource returns log.csv, regenerated from the run log first.
func (s *Server) handleRunLogResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	store, err := runlog.Open(ctx, s.base.Output.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer store.Close()

	if err := store.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := pathutil.Within(s.base.Output.ResultsDir, store.CSVPath()); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(store.CSVPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read run log %s: %w", pathutil.RedactPath(store.CSVPath()), err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      runLogURI,
				MIMEType: "text/csv",
				Text:     string(data),
			},
		},
	}, nil
}

// handleRunSummaryResource returns the summary JSON of one run.
// URI format: episim://runs/{id}/summary
func (s *Server) handleRunSummaryResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runSummaryPrefix) || !strings.HasSuffix(uri, runSummarySuffix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	runID := strings.TrimSuffix(strings.TrimPrefix(uri, runSummaryPrefix), runSummarySuffix)
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	summary, _, err := s.loadSummary(ctx, runID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// runLockedKeys are output settings an agent may not override per run.
// They decide where results live and which archives retention deletes.
var runLockedKeys = map[string]bool{
	"output.results_dir":   true,
	"output.archive":       true,
	"output.keep_archives": true,
}

// handleRun implements the episim_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("episim_run", start, retErr, runID, sanitizeToolParams(map[string]any{
			"purpose": args.Purpose, "params_changed": args.ParamsChanged, "overrides": args.Overrides,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "episim_run"); err != nil {
		return nil, RunOutput{}, err
	}

	cfg := s.base.Clone()
	if purpose := sanitize.Label(args.Purpose); purpose != "" {
		cfg.Simulation.Purpose = purpose
	}
	if changed := sanitize.Label(args.ParamsChanged); changed != "" {
		cfg.Simulation.ParamsChanged = changed
	}

	keys := make([]string, 0, len(args.Overrides))
	for k := range args.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if runLockedKeys[k] {
			return nil, RunOutput{}, &models.ConfigError{Field: k, Reason: "cannot be overridden per run"}
		}
		if err := cfg.Set(k, args.Overrides[k]); err != nil {
			return nil, RunOutput{}, err
		}
	}
	if len(args.Interventions) > 0 {
		cfg.Interventions = args.Interventions
	}
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, err
	}

	s.runMu.Lock()
	rep, err := runner.New(cfg, runner.WithLogger(s.logger)).Run(ctx)
	s.runMu.Unlock()
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("run failed: %w", err)
	}
	runID = rep.RunID

	return nil, RunOutput{
		RunID:        rep.RunID,
		RunUUID:      rep.RunUUID,
		Seed:         rep.Seed,
		FinalState:   rep.Summary.FinalState,
		EverInfected: rep.Summary.EverInfected,
		RuntimeMS:    rep.Summary.RuntimeMS,
		Files:        rep.Files,
		Message: fmt.Sprintf("Run %s finished: %d of %d ever infected over %d days",
			rep.RunID, rep.Summary.EverInfected, rep.Summary.PopulationSize, rep.Summary.DurationDays),
	}, nil
}

// handleRuns implements the episim_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("episim_runs", start, retErr, "", sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "episim_runs"); err != nil {
		return nil, RunsOutput{}, err
	}
	if args.Limit < 0 {
		return nil, RunsOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}

	store, err := runlog.Open(ctx, s.base.Output.ResultsDir)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to open run log: %w", err)
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	if args.Limit > 0 && len(entries) > args.Limit {
		entries = entries[len(entries)-args.Limit:]
	}
	if entries == nil {
		entries = []runlog.Entry{}
	}

	return nil, RunsOutput{Runs: entries, Count: len(entries)}, nil
}

// handleSummary implements the episim_summary tool.
func (s *Server) handleSummary(ctx context.Context, req *sdk.CallToolRequest, args SummaryInput) (_ *sdk.CallToolResult, _ SummaryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("episim_summary", start, retErr, args.RunID, sanitizeToolParams(map[string]any{
			"run_id": args.RunID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "episim_summary"); err != nil {
		return nil, SummaryOutput{}, err
	}
	if args.RunID == "" {
		return nil, SummaryOutput{}, fmt.Errorf("run_id is required")
	}

	summary, id, err := s.loadSummary(ctx, args.RunID)
	if err != nil {
		return nil, SummaryOutput{}, err
	}
	out := SummaryOutput{Summary: *summary}

	if args.IncludeHistory {
		path, err := pathutil.Join(s.base.Output.ResultsDir, export.FileName(id, export.KindTimeseries))
		if err != nil {
			return nil, SummaryOutput{}, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, SummaryOutput{}, fmt.Errorf("failed to open time series: %w", err)
		}
		defer f.Close()
		out.History, err = export.ReadTimeseriesCSV(f)
		if err != nil {
			return nil, SummaryOutput{}, fmt.Errorf("failed to read time series: %w", err)
		}
	}

	return nil, out, nil
}

// handleConfig implements the episim_config tool.
func (s *Server) handleConfig(ctx context.Context, req *sdk.CallToolRequest, args ConfigInput) (_ *sdk.CallToolResult, _ ConfigOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("episim_config", start, retErr, "", sanitizeToolParams(map[string]any{
			"key": args.Key,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "episim_config"); err != nil {
		return nil, ConfigOutput{}, err
	}

	values := make(map[string]any)
	if args.Key != "" {
		v, ok := s.base.Get(args.Key)
		if !ok {
			return nil, ConfigOutput{}, fmt.Errorf("unknown configuration key: %s", args.Key)
		}
		values[args.Key] = v
		return nil, ConfigOutput{Values: values}, nil
	}

	for _, k := range config.Keys {
		v, _ := s.base.Get(k)
		values[k] = v
	}
	return nil, ConfigOutput{Values: values}, nil
}

// loadSummary reads the exported summary of a completed run and returns it
// with the normalized run id.
func (s *Server) loadSummary(ctx context.Context, runID string) (*simulation.Summary, string, error) {
	n, err := runlog.ParseRunID(runID)
	if err != nil {
		return nil, "", err
	}
	id := runlog.FormatRunID(n)

	store, err := runlog.Open(ctx, s.base.Output.ResultsDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open run log: %w", err)
	}
	defer store.Close()
	if _, err := store.Get(ctx, id); err != nil {
		return nil, "", err
	}

	path, err := pathutil.Join(s.base.Output.ResultsDir, export.FileName(id, export.KindSummary))
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read summary for run %s: %w", id, err)
	}
	var summary simulation.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, "", fmt.Errorf("failed to parse summary for run %s: %w", id, err)
	}
	return &summary, id, nil
}
