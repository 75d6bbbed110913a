// Package history keeps a SQLite ledger of finished annotation runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Entry is one finished run.
type Entry struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	VideoPath  string    `json:"video_path"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	OutputPath string    `json:"output_path,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	Bytes      int64     `json:"bytes"`
	FormScore  int       `json:"form_score"`
	RepCount   int       `json:"rep_count"`
	Error      string    `json:"error,omitempty"`
}

// Store persists entries in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating when needed) the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	// busy_timeout avoids "database locked" errors when the CLI reads during a server write
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		video_path TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL CHECK(state IN ('done', 'failed', 'cancelled')),
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		output_path TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		form_score INTEGER NOT NULL DEFAULT 0,
		rep_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts e, replacing an earlier entry with the same id.
func (s *Store) Record(ctx context.Context, e Entry) error {
	query := `
	INSERT INTO runs (id, label, video_path, state, started_at, finished_at, output_path, mime_type, bytes, form_score, rep_count, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		finished_at = excluded.finished_at,
		output_path = excluded.output_path,
		mime_type = excluded.mime_type,
		bytes = excluded.bytes,
		error = excluded.error
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Label, e.VideoPath, e.State,
		e.StartedAt.UTC().Format(timeLayout),
		e.FinishedAt.UTC().Format(timeLayout),
		e.OutputPath, e.MimeType, e.Bytes, e.FormScore, e.RepCount, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.ID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := selectColumns + ` ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

// Get returns the entry for id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// timeLayout is fixed width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `
	SELECT id, label, video_path, state, started_at, finished_at, output_path, mime_type, bytes, form_score, rep_count, error
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                 Entry
		started, finished string
	)
	err := sc.Scan(&e.ID, &e.Label, &e.VideoPath, &e.State, &started, &finished,
		&e.OutputPath, &e.MimeType, &e.Bytes, &e.FormScore, &e.RepCount, &e.Error)
	if err != nil {
		return Entry{}, err
	}
	if t, err := time.Parse(timeLayout, started); err == nil {
		e.StartedAt = t
	}
	if t, err := time.Parse(timeLayout, finished); err == nil {
		e.FinishedAt = t
	}
	return e, nil
}
