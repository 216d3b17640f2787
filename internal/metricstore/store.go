// Package metricstore persists per-step training metrics and evaluation
// results in SQLite so supervision runs can be compared after the fact.
package metricstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run describes one recorded supervision run.
type Run struct {
	RunID         string  `json:"run_id"`
	LossType      string  `json:"loss_type"`
	DepthLossMult float64 `json:"depth_loss_mult"`
	CreatedAt     int64   `json:"created_at"`
}

// StepValue is one point of a per-step metric series.
type StepValue struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Store provides persistence for supervision run metrics.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and applies pending schema
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metric store: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// CreateRun registers a new run and returns its generated ID.
func (s *Store) CreateRun(lossType string, depthLossMult float64) (string, error) {
	runID := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, loss_type, depth_loss_mult, created_at)
		VALUES (?, ?, ?, ?)`,
		runID, lossType, depthLossMult, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// RecordStep persists one step's metrics for a run, replacing any previous
// values for the same step and names.
func (s *Store) RecordStep(runID string, step int, metrics map[string]float64) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin step metrics: %w", err)
	}
	defer tx.Rollback()

	for _, name := range sortedKeys(metrics) {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO step_metrics (run_id, step, name, value)
			VALUES (?, ?, ?, ?)`,
			runID, step, name, metrics[name]); err != nil {
			return fmt.Errorf("insert step metric %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// RecordEval persists evaluation metrics for a run.
func (s *Store) RecordEval(runID string, metrics map[string]float64) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin eval metrics: %w", err)
	}
	defer tx.Rollback()

	for _, name := range sortedKeys(metrics) {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO eval_metrics (run_id, name, value)
			VALUES (?, ?, ?)`,
			runID, name, metrics[name]); err != nil {
			return fmt.Errorf("insert eval metric %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// StepSeries returns the recorded series for one metric of one run, ordered
// by step.
func (s *Store) StepSeries(runID, name string) ([]StepValue, error) {
	rows, err := s.db.Query(`
		SELECT step, value FROM step_metrics
		WHERE run_id = ? AND name = ?
		ORDER BY step`, runID, name)
	if err != nil {
		return nil, fmt.Errorf("query step series: %w", err)
	}
	defer rows.Close()

	var series []StepValue
	for rows.Next() {
		var sv StepValue
		if err := rows.Scan(&sv.Step, &sv.Value); err != nil {
			return nil, fmt.Errorf("scan step value: %w", err)
		}
		series = append(series, sv)
	}
	return series, rows.Err()
}

// StepMetricNames returns the distinct metric names recorded for a run.
func (s *Store) StepMetricNames(runID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT name FROM step_metrics
		WHERE run_id = ?
		ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("query metric names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan metric name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// EvalMetrics returns a run's evaluation metrics.
func (s *Store) EvalMetrics(runID string) (map[string]float64, error) {
	rows, err := s.db.Query(`
		SELECT name, value FROM eval_metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query eval metrics: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan eval metric: %w", err)
		}
		metrics[name] = value
	}
	return metrics, rows.Err()
}

// ListRuns returns all recorded runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, loss_type, depth_loss_mult, created_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.LossType, &r.DepthLossMult, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
