package runlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the first row of log.csv.
var CSVHeader = []string{"Run ID", "Purpose", "Parameters Changed", "Duration (ms)", "Data File"}

// Sync rewrites log.csv from the database. The file is replaced atomically.
func (s *Store) Sync(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".log-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(CSVHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write log header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.RunID,
			e.Purpose,
			e.ParamsChanged,
			strconv.FormatFloat(e.RuntimeMS, 'f', -1, 64),
			e.DataFile,
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write log row %s: %w", e.RunID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.csvPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(s.csvPath), err)
	}
	return nil
}

// autoImport loads an existing log.csv into an empty database. Rows whose
// first column is not a number are skipped, as are duplicate ids.
func (s *Store) autoImport(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count runs: %w", err)
	}
	if count > 0 {
		return nil
	}

	f, err := os.Open(s.csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}

	seen := make(map[int64]bool)
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true

		e := Entry{RunID: FormatRunID(n), CreatedAt: time.Unix(0, 0)}
		if len(rec) > 1 {
			e.Purpose = rec[1]
		}
		if len(rec) > 2 {
			e.ParamsChanged = rec[2]
		}
		if len(rec) > 3 {
			e.RuntimeMS, _ = strconv.ParseFloat(rec[3], 64)
		}
		if len(rec) > 4 {
			e.DataFile = rec[4]
		}
		if err := s.Record(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
