// Package history records pipeline runs in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/london-crime/internal/model"
)

// Store implements pipeline.Recorder using modernc.org/sqlite.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens (creating if needed) the SQLite database at path and configures WAL mode.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "history: create directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "history: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "history: exec %s", pragma)
		}
	}
	return &Store{db: db, clock: clockwork.NewRealClock()}, nil
}

// SetClock swaps the time source. Pass nil to reset to real time.
func (s *Store) SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	s.clock = c
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source_url   TEXT NOT NULL,
	output_path  TEXT NOT NULL,
	status       TEXT NOT NULL,
	error_kind   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	rows         INTEGER NOT NULL DEFAULT 0,
	output_bytes INTEGER NOT NULL DEFAULT 0,
	result       TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the runs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "history: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records the beginning of a run and returns its ID.
func (s *Store) Start(ctx context.Context, sourceURL, outputPath string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_url, output_path, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, sourceURL, outputPath, string(model.RunStatusFetching), s.clock.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "history: insert run")
	}
	return id, nil
}

// SetStatus moves a run to a new non-terminal status.
func (s *Store) SetStatus(ctx context.Context, id string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "history: update status %s", id)
	}
	return checkRowsAffected(res, id)
}

// Complete marks a run as successfully completed.
func (s *Store) Complete(ctx context.Context, id string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "history: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, rows = ?, output_bytes = ?, result = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), result.Rows, result.OutputBytes, string(resultJSON), s.clock.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "history: complete run %s", id)
	}
	return checkRowsAffected(res, id)
}

// Fail marks a run as failed with the given kind and message.
func (s *Store) Fail(ctx context.Context, id string, kind model.ErrorKind, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_kind = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), string(kind), msg, s.clock.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "history: fail run %s", id)
	}
	return checkRowsAffected(res, id)
}

// Get returns a single run by ID.
func (s *Store) Get(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_url, output_path, status, error_kind, error, rows, output_bytes, started_at, completed_at
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_url, output_path, status, error_kind, error, rows, output_bytes, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "history: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "history: list runs iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "history: rows affected")
	}
	if n == 0 {
		return eris.Errorf("history: run not found: %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status, kind string
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.SourceURL, &r.OutputPath, &status, &kind, &r.Error,
		&r.Rows, &r.OutputBytes, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, eris.New("history: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "history: scan run")
	}

	r.Status = model.RunStatus(status)
	r.ErrorKind = model.ErrorKind(kind)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
