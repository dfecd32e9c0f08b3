// Package runlog allocates run identifiers and keeps the cumulative log of
// completed runs.
//
// The log lives in a SQLite database (<results>/runs.db) and is mirrored to
// a human-readable CSV (<results>/log.csv) on Sync. A results directory that
// only has a log.csv from an older tool is imported on first open so run
// numbering continues where it left off.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/episim/internal/constants"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Entry is one completed run.
type Entry struct {
	RunID          string    `json:"run_id"`
	RunUUID        string    `json:"run_uuid"`
	Purpose        string    `json:"purpose"`
	ParamsChanged  string    `json:"params_changed"`
	Virus          string    `json:"virus,omitempty"`
	PopulationSize int       `json:"population_size,omitempty"`
	DurationDays   int       `json:"duration_days,omitempty"`
	Seed           uint64    `json:"seed,omitempty"`
	RuntimeMS      float64   `json:"runtime_ms"`
	EverInfected   int       `json:"ever_infected"`
	DataFile       string    `json:"data_file"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the SQLite-backed run log.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	dir     string
	dbPath  string
	csvPath string
}

// Open opens (creating if needed) the run log in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	dbPath := filepath.Join(dir, constants.RunLogDB)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:      db,
		dir:     dir,
		dbPath:  dbPath,
		csvPath: filepath.Join(dir, constants.RunLogCSV),
	}

	if err := s.autoImport(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to import %s: %w", constants.RunLogCSV, err)
	}
	return s, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string { return s.dir }

// CSVPath returns the path of the CSV mirror.
func (s *Store) CSVPath() string { return s.csvPath }

// FormatRunID renders a numeric run id, zero-padded to three digits.
func FormatRunID(n int64) string {
	return fmt.Sprintf("%0*d", constants.RunIDWidth, n)
}

// ParseRunID accepts "7", "007" and similar.
func ParseRunID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid run id %q", id)
	}
	return n, nil
}

// NextRunID returns the id the next reservation would get without
// reserving it: "001" on an empty log, otherwise the highest id plus one.
func (s *Store) NextRunID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.maxRunID(ctx)
	if err != nil {
		return "", err
	}
	return FormatRunID(n + 1), nil
}

func (s *Store) maxRunID(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(run_id) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read max run id: %w", err)
	}
	return n.Int64, nil
}

// Reserve allocates the next run id. The row stays hidden from List until
// Record completes it; Abandon releases it.
func (s *Store) Reserve(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, status, created_at)
		 VALUES ((SELECT COALESCE(MAX(run_id), 0) + 1 FROM runs), 'running', ?)`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to reserve run id: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read reserved run id: %w", err)
	}
	return FormatRunID(n), nil
}

// Abandon drops a reservation that never completed. Completed runs are
// left alone.
func (s *Store) Abandon(ctx context.Context, runID string) error {
	n, err := ParseRunID(runID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id = ? AND status = 'running'`, n); err != nil {
		return fmt.Errorf("failed to abandon run %s: %w", runID, err)
	}
	return nil
}

// Record stores a completed run. The id may come from Reserve or be new.
func (s *Store) Record(ctx context.Context, e Entry) error {
	n, err := ParseRunID(e.RunID)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, run_uuid, status, purpose, params_changed, virus,
			population_size, duration_days, seed, runtime_ms, ever_infected, data_file, created_at)
		VALUES (?, ?, 'completed', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			run_uuid = excluded.run_uuid,
			status = 'completed',
			purpose = excluded.purpose,
			params_changed = excluded.params_changed,
			virus = excluded.virus,
			population_size = excluded.population_size,
			duration_days = excluded.duration_days,
			seed = excluded.seed,
			runtime_ms = excluded.runtime_ms,
			ever_infected = excluded.ever_infected,
			data_file = excluded.data_file,
			created_at = excluded.created_at`,
		n, nullString(e.RunUUID), e.Purpose, e.ParamsChanged, e.Virus,
		e.PopulationSize, e.DurationDays, strconv.FormatUint(e.Seed, 10),
		e.RuntimeMS, e.EverInfected, e.DataFile,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", e.RunID, err)
	}
	return nil
}

const selectColumns = `run_id, COALESCE(run_uuid, ''), purpose, params_changed, virus,
	population_size, duration_days, seed, runtime_ms, ever_infected, data_file, created_at`

// List returns completed runs ordered by run id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM runs WHERE status = 'completed' ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one completed run.
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	n, err := ParseRunID(runID)
	if err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM runs WHERE run_id = ? AND status = 'completed'`, n)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("run %s: %w", FormatRunID(n), ErrNotFound)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (Entry, error) {
	var (
		e         Entry
		n         int64
		seed      string
		createdAt string
	)
	if err := r.Scan(&n, &e.RunUUID, &e.Purpose, &e.ParamsChanged, &e.Virus,
		&e.PopulationSize, &e.DurationDays, &seed, &e.RuntimeMS, &e.EverInfected,
		&e.DataFile, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan run: %w", err)
	}
	e.RunID = FormatRunID(n)
	e.Seed, _ = strconv.ParseUint(seed, 10, 64)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

// Close closes the database after a final Sync.
func (s *Store) Close() error {
	if err := s.Sync(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to sync during close: %v\n", err)
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
