// Package runner drives one complete run: it reserves a run id, simulates,
// writes every artifact and records the run in the cumulative log. The CLI
// and the MCP server both go through it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/episim/internal/archive"
	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/constants"
	"github.com/nvandessel/episim/internal/export"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/population"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/nvandessel/episim/internal/simulation"
)

// Artifact kinds produced here in addition to the export files.
const (
	KindMetrics = "metrics"
	KindArchive = "archive"
)

// Report describes a finished run.
type Report struct {
	RunID   string             `json:"run_id"`
	RunUUID string             `json:"run_uuid"`
	Seed    uint64             `json:"seed"`
	Summary simulation.Summary `json:"summary"`
	Files   []export.File      `json:"files"`
	Pruned  []string           `json:"pruned_archives,omitempty"`

	Result *simulation.Result `json:"-"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Nil means discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for the simulation and the run log.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes runs against one configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a runner. cfg is not modified.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one run end to end. A run that fails after its id was
// reserved releases the id again, so the log never shows gaps from
// aborted runs.
func (r *Runner) Run(ctx context.Context) (rep *Report, err error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	dir := r.cfg.Output.ResultsDir

	store, err := runlog.Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer store.Close()

	runID, err := store.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		// The caller's context may be the reason we failed.
		if abandonErr := store.Abandon(context.Background(), runID); abandonErr != nil {
			r.logger.Warn("failed to release run id", "run_id", runID, "error", abandonErr)
		}
	}()

	logger := r.logger.With("run_id", runID)
	tracer := logging.NewDecisionLogger(dir, r.cfg.Logging.Level)
	tracer.Tag("run_id", runID)
	defer func() {
		if cerr := tracer.Close(); cerr != nil {
			logger.Warn("failed to write decision trace", "error", cerr)
		}
	}()

	sim, err := simulation.New(r.cfg,
		simulation.WithLogger(logger),
		simulation.WithTracer(tracer),
		simulation.WithRunID(runID),
		simulation.WithClock(r.now))
	if err != nil {
		return nil, err
	}
	result, err := sim.Run(ctx)
	if err != nil {
		return nil, err
	}

	// Persist the seed actually used so the config file replays the run.
	used := r.cfg.Clone()
	used.Simulation.Seed = sim.Seed()

	files, err := export.Write(ctx, dir, runID, used, result)
	if err != nil {
		return nil, fmt.Errorf("exporting run %s: %w", runID, err)
	}
	list := files.List()

	m := metrics.New(runID)
	m.Observe(result)
	promPath, err := m.WriteTextfile(dir, runID)
	if err != nil {
		return nil, err
	}
	list = append(list, export.File{Kind: KindMetrics, Path: promPath})

	var pruned []string
	if r.cfg.Output.Archive {
		archiveDir := filepath.Join(dir, constants.ArchiveDir)
		path := filepath.Join(archiveDir, archive.FileName(runID))
		if err := archive.Write(path, archive.NewPayload(used, result)); err != nil {
			return nil, fmt.Errorf("archiving run %s: %w", runID, err)
		}
		list = append(list, export.File{Kind: KindArchive, Path: path})

		var rerr error
		pruned, rerr = archive.ApplyRetention(archiveDir, &archive.CountPolicy{MaxCount: r.cfg.Output.KeepArchives})
		if rerr != nil {
			logger.Warn("archive retention failed", "error", rerr)
		}
		for _, p := range pruned {
			logger.Debug("pruned archive", "path", p)
		}
	}

	s := result.Summary
	entry := runlog.Entry{
		RunID:          runID,
		RunUUID:        s.RunUUID,
		Purpose:        s.Purpose,
		ParamsChanged:  s.ParamsChanged,
		Virus:          s.Virus,
		PopulationSize: s.PopulationSize,
		DurationDays:   s.DurationDays,
		Seed:           s.Seed,
		RuntimeMS:      s.RuntimeMS,
		EverInfected:   s.EverInfected,
		DataFile:       files[export.KindSummary],
		CreatedAt:      s.Timestamp,
	}
	if err := store.Record(ctx, entry); err != nil {
		return nil, err
	}
	if err := store.Sync(ctx); err != nil {
		logger.Warn("failed to sync run log", "error", err)
	}

	logger.Info("run recorded", "files", len(list), "summary", files[export.KindSummary])

	return &Report{
		RunID:   runID,
		RunUUID: s.RunUUID,
		Seed:    s.Seed,
		Summary: s,
		Files:   list,
		Pruned:  pruned,
		Result:  result,
	}, nil
}

// Replay re-runs a recorded run from its exported configuration, or from
// its archive when the configuration file is gone. Nothing is written.
// Runs are deterministic for a given seed, so the returned population is
// the final state of the original run.
func Replay(ctx context.Context, dir, runID string, logger *slog.Logger) (*population.Population, *simulation.Result, error) {
	cfg, err := RecordedConfig(dir, runID)
	if err != nil {
		return nil, nil, err
	}

	sim, err := simulation.New(cfg, simulation.WithLogger(logger), simulation.WithRunID(runID))
	if err != nil {
		return nil, nil, err
	}
	result, err := sim.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sim.Population(), result, nil
}

// RecordedConfig loads the configuration a run was made with.
func RecordedConfig(dir, runID string) (*config.Config, error) {
	cfgPath := filepath.Join(dir, export.FileName(runID, export.KindConfig))
	cfg, err := config.LoadFromFile(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	archivePath := filepath.Join(dir, constants.ArchiveDir, archive.FileName(runID))
	_, payload, aerr := archive.Read(archivePath)
	if aerr != nil {
		return nil, fmt.Errorf("no configuration recorded for run %s: %w", runID, aerr)
	}
	if payload.Config == nil {
		return nil, fmt.Errorf("archive for run %s has no configuration", runID)
	}
	return payload.Config, nil
}
