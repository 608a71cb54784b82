// Package journal keeps a local SQLite record of completed mention
// cycles. The remote services stay the source of truth for threads and
// memories; the journal exists so an operator can answer "what did the
// agent do overnight" without remote access. Writes are best-effort —
// a journal failure is logged, never surfaced as a cycle failure.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver for database/sql
)

// Entry is one recorded mention cycle.
type Entry struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Request   string    `json:"request"`
	PostCount int       `json:"post_count"`
	Sent      bool      `json:"sent"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Store is a SQLite-backed cycle journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the journal database at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		request TEXT NOT NULL,
		post_count INTEGER NOT NULL DEFAULT 0,
		sent BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
	CREATE INDEX IF NOT EXISTS idx_cycles_thread ON cycles(thread_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one cycle entry. A zero-ID entry gets a fresh UUID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, thread_id, sender_id, request, post_count, sent, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ThreadID, e.SenderID, e.Request, e.PostCount, e.Sent, e.Error, e.StartedAt, e.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, sender_id, request, post_count, sent, error, started_at, ended_at
		 FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ThreadID, &e.SenderID, &e.Request, &e.PostCount, &e.Sent, &e.Error, &e.StartedAt, &e.EndedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns cycle counters for the status endpoint.
func (s *Store) Stats(ctx context.Context) (total, failed int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(CASE WHEN error != '' THEN 1 END) FROM cycles`)
	if err := row.Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("scan stats: %w", err)
	}
	return total, failed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
