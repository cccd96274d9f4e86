// Package history records finished generations in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// previewRunes bounds the stored text preview.
const previewRunes = 120

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("history entry not found")

// Entry is one finished generation.
type Entry struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"`
	Voice        string        `json:"voice"`
	Preview      string        `json:"preview"`
	Chunks       int           `json:"chunks"`
	Duration     time.Duration `json:"duration"`
	ArtifactSize int           `json:"artifact_size"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Error        string        `json:"error,omitempty"`
}

// Took is the wall time spent generating.
func (e Entry) Took() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a SQLite-backed history.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open creates or opens the database at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.WithPrefix("history")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    voice TEXT,
    preview TEXT,
    chunks INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    artifact_size INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_generations_finished ON generations(finished_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations(id, mode, voice, preview, chunks, duration_ms, artifact_size, started_at, finished_at, error)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   chunks=excluded.chunks, duration_ms=excluded.duration_ms,
		   artifact_size=excluded.artifact_size, finished_at=excluded.finished_at, error=excluded.error`,
		e.ID, e.Mode, e.Voice, Preview(e.Preview), e.Chunks, e.Duration.Milliseconds(), e.ArtifactSize,
		e.StartedAt.UTC(), e.FinishedAt.UTC(), e.Error)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	s.logger.Debug("recorded generation", "id", e.ID, "chunks", e.Chunks)
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, mode, voice, preview, chunks, duration_ms, artifact_size, started_at, finished_at, error
		FROM generations ORDER BY finished_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, voice, preview, chunks, duration_ms, artifact_size, started_at, finished_at, error
		 FROM generations WHERE id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Prune deletes entries finished before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune generations: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(r scanner) (Entry, error) {
	var (
		e          Entry
		voice, pre sql.NullString
		errText    sql.NullString
		durationMS int64
	)
	if err := r.Scan(&e.ID, &e.Mode, &voice, &pre, &e.Chunks, &durationMS, &e.ArtifactSize,
		&e.StartedAt, &e.FinishedAt, &errText); err != nil {
		return Entry{}, err
	}
	e.Voice = voice.String
	e.Preview = pre.String
	e.Error = errText.String
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return e, nil
}

// Preview shortens text to the stored preview length.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes-1]) + "…"
}
