package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/godilite/surveydash/internal/repository/models"
)

// timeLayout sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Schema creates the load history tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS load_runs (
		id TEXT PRIMARY KEY,
		generation INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		row_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS load_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES load_runs(id),
		name TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_load_files_name ON load_files(name)`,
	`CREATE INDEX IF NOT EXISTS idx_load_files_run ON load_files(run_id)`,
}

type LoadHistoryRepository struct {
	db *sql.DB
}

func NewLoadHistoryRepository(db *sql.DB) *LoadHistoryRepository {
	return &LoadHistoryRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// RecordLoad stores a run and its files in one transaction.
func (s *LoadHistoryRepository) RecordLoad(ctx context.Context, run models.LoadRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin RecordLoad: %w", err)
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO load_runs (id, generation, started_at, duration_ms, row_count)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insertRun,
		run.ID, int64(run.Generation), formatTime(run.StartedAt), run.Duration.Milliseconds(), run.Rows); err != nil {
		return fmt.Errorf("insert load_runs: %w", err)
	}

	const insertFile = `
		INSERT INTO load_files (run_id, name, row_count, error)
		VALUES (?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, insertFile)
	if err != nil {
		return fmt.Errorf("prepare load_files insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range run.Files {
		if _, err := stmt.ExecContext(ctx, run.ID, f.Name, f.Rows, f.Error); err != nil {
			return fmt.Errorf("insert load_files: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit RecordLoad: %w", err)
	}
	return nil
}

// RecentLoads returns the latest runs, newest first, with their files.
func (s *LoadHistoryRepository) RecentLoads(ctx context.Context, limit int) ([]models.LoadRun, error) {
	const query = `
		SELECT id, generation, started_at, duration_ms, row_count
		FROM load_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query RecentLoads: %w", err)
	}
	defer rows.Close()

	var runs []models.LoadRun
	for rows.Next() {
		var (
			r          models.LoadRun
			generation int64
			started    string
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &generation, &started, &durationMS, &r.Rows); err != nil {
			return nil, fmt.Errorf("scan RecentLoads row: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		r.Generation = uint64(generation)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate RecentLoads: %w", err)
	}

	for i := range runs {
		files, err := s.runFiles(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Files = files
	}
	return runs, nil
}

func (s *LoadHistoryRepository) runFiles(ctx context.Context, runID string) ([]models.LoadFile, error) {
	const query = `
		SELECT run_id, name, row_count, error
		FROM load_files
		WHERE run_id = ?
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer rows.Close()

	var files []models.LoadFile
	for rows.Next() {
		var f models.LoadFile
		if err := rows.Scan(&f.RunID, &f.Name, &f.Rows, &f.Error); err != nil {
			return nil, fmt.Errorf("scan run file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run files: %w", err)
	}
	return files, nil
}

// FileStats aggregates, per export name, how often it loaded and failed,
// computed entirely in SQL.
func (s *LoadHistoryRepository) FileStats(ctx context.Context) ([]models.FileLoadStats, error) {
	const query = `
		SELECT
			f.name,
			COUNT(*) AS loads,
			SUM(CASE WHEN f.error <> '' THEN 1 ELSE 0 END) AS failures,
			(
				SELECT f2.row_count
				FROM load_files AS f2
				JOIN load_runs AS r2 ON r2.id = f2.run_id
				WHERE f2.name = f.name
				ORDER BY r2.started_at DESC
				LIMIT 1
			) AS last_rows,
			MAX(r.started_at) AS last_seen
		FROM load_files AS f
		JOIN load_runs AS r ON r.id = f.run_id
		GROUP BY f.name
		ORDER BY f.name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query FileStats: %w", err)
	}
	defer rows.Close()

	var results []models.FileLoadStats
	for rows.Next() {
		var (
			st       models.FileLoadStats
			lastRows sql.NullInt64
			lastSeen string
		)
		if err := rows.Scan(&st.Name, &st.Loads, &st.Failures, &lastRows, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan FileStats row: %w", err)
		}
		if lastRows.Valid {
			st.LastRows = int(lastRows.Int64)
		}
		if st.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate FileStats: %w", err)
	}
	return results, nil
}
