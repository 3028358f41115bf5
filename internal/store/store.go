// Package store keeps a SQLite history of conversion runs.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for run history.
type Store struct {
	db *sqlx.DB
}

// RunRecord describes one finished batch.
type RunRecord struct {
	ID        int64      `json:"id"`
	JobID     string     `json:"job_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Direction string     `json:"direction"`
	Params    params.Set `json:"-"`
	Files     int        `json:"files"`
	Failed    int        `json:"failed"`
}

// FileRecord is the stored outcome of one file.
type FileRecord struct {
	RunID   int64  `db:"run_id" json:"run_id"`
	Input   string `db:"input" json:"input"`
	Output  string `db:"output" json:"output"`
	Outcome string `db:"outcome" json:"outcome"`
	Error   string `db:"error" json:"error,omitempty"`
}

type runRow struct {
	ID         int64  `db:"id"`
	JobID      string `db:"job_id"`
	StartedAt  string `db:"started_at"`
	EndedAt    string `db:"ended_at"`
	Direction  string `db:"direction"`
	ParamsJSON string `db:"params_json"`
	Files      int    `db:"files"`
	Failed     int    `db:"failed"`
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			job_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			direction TEXT NOT NULL,
			params_json TEXT NOT NULL,
			files INTEGER NOT NULL,
			failed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_files (
			run_id INTEGER NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_files_run_id ON run_files(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun stores a run and its per-file outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord, outcomes []types.Outcome) (int64, error) {
	paramsJSON, err := json.Marshal(rec.Params.Map())
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (job_id, started_at, ended_at, direction, params_json, files, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.EndedAt.UTC().Format(timeLayout),
		rec.Direction,
		string(paramsJSON),
		len(outcomes),
		failed,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, o := range outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO run_files (run_id, input, output, outcome, error)
			 VALUES (:run_id, :input, :output, :outcome, :error)`,
			FileRecord{RunID: id, Input: o.Input, Output: o.Output, Outcome: o.Kind.String(), Error: errText})
		if err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// timeLayout is fixed width and always UTC so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ListRuns returns the most recent runs, newest first. last <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, last int) ([]RunRecord, error) {
	query := `SELECT id, job_id, started_at, ended_at, direction, params_json, files, failed
		FROM runs ORDER BY ended_at DESC, id DESC`
	args := []any{}
	if last > 0 {
		query += ` LIMIT ?`
		args = append(args, last)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	runs := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		rec := RunRecord{
			ID:        row.ID,
			JobID:     row.JobID,
			Direction: row.Direction,
			Files:     row.Files,
			Failed:    row.Failed,
		}
		var err error
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, row.StartedAt); err != nil {
			return nil, err
		}
		if rec.EndedAt, err = time.Parse(time.RFC3339Nano, row.EndedAt); err != nil {
			return nil, err
		}
		var m map[string]float64
		if err := json.Unmarshal([]byte(row.ParamsJSON), &m); err != nil {
			return nil, err
		}
		if rec.Params, err = params.FromMap(m); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

// ListRunFiles returns the per-file outcomes of a run in insertion order.
func (s *Store) ListRunFiles(ctx context.Context, runID int64) ([]FileRecord, error) {
	var files []FileRecord
	err := s.db.SelectContext(ctx, &files,
		`SELECT run_id, input, output, outcome, error FROM run_files WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	return files, nil
}
