package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"tg_harvest/internal/model"
	"tg_harvest/migrations"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLite implements Journal backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// StartRun creates a new open run of the given kind.
func (s *SQLite) StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Kind), run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun returns a run with its result counts.
func (s *SQLite) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE r.id = ? GROUP BY r.id`, id)
	return scanRun(row)
}

// LatestOpenRun returns the most recently started unfinished run of kind.
func (s *SQLite) LatestOpenRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		runSelect+` WHERE r.kind = ? AND r.finished_at IS NULL
		 GROUP BY r.id ORDER BY r.started_at DESC, r.rowid DESC LIMIT 1`,
		string(kind),
	)
	return scanRun(row)
}

// FinishRun marks a run as complete.
func (s *SQLite) FinishRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		s.now().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns returns the latest runs, newest first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		runSelect+` GROUP BY r.id ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RecordResult stores the outcome for one endpoint, replacing an earlier
// outcome for the same endpoint in the same run.
func (s *SQLite) RecordResult(ctx context.Context, res *model.EndpointResult) error {
	if res.ProcessedAt.IsZero() {
		res.ProcessedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO endpoint_results (run_id, endpoint, status, records, error, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Endpoint, string(res.Status), res.Records, res.Error, res.ProcessedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// ListResults returns the outcomes of a run in processing order.
func (s *SQLite) ListResults(ctx context.Context, runID string) ([]model.EndpointResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, endpoint, status, records, error, processed_at
		 FROM endpoint_results WHERE run_id = ? ORDER BY processed_at, rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.EndpointResult
	for rows.Next() {
		var r model.EndpointResult
		var status, processed string
		if err := rows.Scan(&r.RunID, &r.Endpoint, &status, &r.Records, &r.Error, &processed); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = model.ResultStatus(status)
		r.ProcessedAt, _ = time.Parse(timeLayout, processed)
		results = append(results, r)
	}
	return results, rows.Err()
}

// IsDone checks whether endpoint was processed successfully in run.
func (s *SQLite) IsDone(ctx context.Context, runID, endpoint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoint_results WHERE run_id = ? AND endpoint = ? AND status = ?`,
		runID, endpoint, string(model.StatusOK),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check done: %w", err)
	}
	return count > 0, nil
}

const runSelect = `SELECT r.id, r.kind, r.started_at, r.finished_at,
	COALESCE(SUM(CASE WHEN e.status = 'ok' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN e.status = 'failed' THEN 1 ELSE 0 END), 0)
	FROM runs r LEFT JOIN endpoint_results e ON e.run_id = r.id`

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var kind, started string
	var finished sql.NullString
	err := row.Scan(&r.ID, &kind, &started, &finished, &r.OK, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Kind = model.RunKind(kind)
	r.StartedAt, _ = time.Parse(timeLayout, started)
	if finished.Valid {
		t, _ := time.Parse(timeLayout, finished.String)
		r.FinishedAt = &t
	}
	return &r, nil
}
