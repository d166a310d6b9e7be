// Package history keeps a local SQLite log of stable activity events so the
// status server can show recent activity across restarts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/motion-sensor/internal/logic"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT    NOT NULL,
	ts_ms     INTEGER NOT NULL,
	label     INTEGER NOT NULL,
	name      TEXT    NOT NULL DEFAULT '',
	votes     TEXT    NOT NULL,
	span_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_ts ON events (ts_ms);
`

// Record is a stored event.
type Record struct {
	ID     int64         `json:"id"`
	RunID  string        `json:"run_id"`
	Time   time.Time     `json:"timestamp"`
	Label  logic.Label   `json:"label"`
	Name   string        `json:"name,omitempty"`
	Votes  []logic.Label `json:"votes"`
	SpanMs int64         `json:"span_ms"`
}

// Store is an event log backed by a SQLite file.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the database at path. runID tags every event
// recorded by this process. Use ":memory:" for a throwaway store.
func Open(path, runID string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, runID: runID}, nil
}

// Record appends event to the log.
func (s *Store) Record(ctx context.Context, event logic.Event) error {
	votes, err := json.Marshal(labelsOrEmpty(event.Votes))
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, ts_ms, label, name, votes, span_ms) VALUES (?, ?, ?, ?, ?, ?)",
		s.runID, event.Timestamp.UnixMilli(), int(event.Label), event.Name, string(votes), event.SpanMs)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, errors.New("history: limit must be > 0")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, ts_ms, label, name, votes, span_ms FROM events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r     Record
			tsMs  int64
			label int
			votes string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &tsMs, &label, &r.Name, &votes, &r.SpanMs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Time = time.UnixMilli(tsMs).UTC()
		r.Label = logic.Label(label)
		if err := json.Unmarshal([]byte(votes), &r.Votes); err != nil {
			return nil, fmt.Errorf("decode votes of event %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return records, nil
}

// Counts returns the number of stored events per label.
func (s *Store) Counts(ctx context.Context) (logic.EventCounts, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, COUNT(*) FROM events GROUP BY label")
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := logic.EventCounts{}
	for rows.Next() {
		var label, n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[logic.Label(label)] = n
	}
	return counts, rows.Err()
}

// Prune deletes all but the newest keep events and returns how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, errors.New("history: keep must be >= 0")
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)", keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func labelsOrEmpty(l []logic.Label) []logic.Label {
	if l == nil {
		return []logic.Label{}
	}
	return l
}
