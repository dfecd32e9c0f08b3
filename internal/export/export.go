// Package export writes the per-run data files into the results directory.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/simulation"
	"github.com/nvandessel/episim/internal/visualization"
	"golang.org/x/sync/errgroup"
)

// Artifact kinds, in the order they are listed.
const (
	KindTimeseries = "timeseries"
	KindEvents     = "events"
	KindSummary    = "summary"
	KindConfig     = "config"
	KindArrow      = "arrow"
	KindCurve      = "curve"
)

// Kinds lists every artifact Write produces, in listing order.
var Kinds = []string{KindTimeseries, KindEvents, KindSummary, KindConfig, KindArrow, KindCurve}

// FileName returns the base name of an artifact, e.g. run_004_events.csv.
func FileName(runID, kind string) string {
	switch kind {
	case KindSummary, KindConfig:
		return fmt.Sprintf("run_%s_%s.json", runID, kind)
	case KindArrow:
		return fmt.Sprintf("run_%s_timeseries.arrow", runID)
	case KindCurve:
		return fmt.Sprintf("run_%s_curve.svg", runID)
	default:
		return fmt.Sprintf("run_%s_%s.csv", runID, kind)
	}
}

// File is one written artifact.
type File struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Files maps each artifact kind to its path.
type Files map[string]string

// List returns the files in Kinds order, skipping kinds that were not written.
func (f Files) List() []File {
	out := make([]File, 0, len(f))
	for _, k := range Kinds {
		if p, ok := f[k]; ok {
			out = append(out, File{Kind: k, Path: p})
		}
	}
	return out
}

// Write exports a completed run to dir. The files are written concurrently;
// the first failure cancels the rest and is returned.
func Write(ctx context.Context, dir, runID string, cfg *config.Config, result *simulation.Result) (Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	files := make(Files, len(Kinds))
	for _, k := range Kinds {
		files[k] = filepath.Join(dir, FileName(runID, k))
	}

	writers := map[string]func(io.Writer) error{
		KindTimeseries: func(w io.Writer) error { return WriteTimeseriesCSV(w, result.History) },
		KindEvents:     func(w io.Writer) error { return WriteEventsCSV(w, result.Events) },
		KindSummary:    func(w io.Writer) error { return WriteJSON(w, result.Summary) },
		KindConfig:     func(w io.Writer) error { return WriteJSON(w, cfg) },
		KindArrow:      func(w io.Writer) error { return WriteTimeseriesArrow(w, result.History) },
		KindCurve: func(w io.Writer) error {
			_, err := w.Write(visualization.RenderCurveSVG(CurveTitle(cfg), result.History))
			return err
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, k := range Kinds {
		path, write := files[k], writers[k]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeFile(path, write)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// CurveTitle is the heading of the epidemic curve plot.
func CurveTitle(cfg *config.Config) string {
	return "Epidemic Simulation: " + cfg.Virus.Name
}

// WriteJSON encodes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// writeFile creates path and streams write into it through a buffer.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
