package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Fixed-width UTC timestamps so that text order equals time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage implements ProgressStorage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Write transactions take the
// database write lock when they begin, which serializes read-modify-write updates.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS progress (
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		xp_total INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		topic TEXT NOT NULL DEFAULT '',
		gaps TEXT NOT NULL DEFAULT '[]',
		path_position TEXT NOT NULL DEFAULT '{}',
		badges TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		ts TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_session_agent_ts ON events(session_id, agent_id, ts);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

func (s *SQLiteStorage) timestamp() string {
	return s.now().UTC().Format(tsLayout)
}

// EnsureProgress creates a zero record for the pair if none exists.
func (s *SQLiteStorage) EnsureProgress(ctx context.Context, sessionID, agentID string) error {
	return s.ensure(ctx, s.db, sessionID, agentID)
}

func (s *SQLiteStorage) ensure(ctx context.Context, q querier, sessionID, agentID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO progress (session_id, agent_id, updated_at) VALUES (?, ?, ?)`,
		sessionID, agentID, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure progress: %w", err)
	}
	return nil
}

// GetProgress returns the record for the pair, or ErrNotFound.
func (s *SQLiteStorage) GetProgress(ctx context.Context, sessionID, agentID string) (*ProgressRow, error) {
	return getProgress(ctx, s.db, sessionID, agentID)
}

func getProgress(ctx context.Context, q querier, sessionID, agentID string) (*ProgressRow, error) {
	row := ProgressRow{SessionID: sessionID, AgentID: agentID}
	var updatedAt string
	err := q.QueryRowContext(ctx,
		`SELECT xp_total, level, topic, gaps, path_position, badges, updated_at
		 FROM progress WHERE session_id = ? AND agent_id = ?`,
		sessionID, agentID,
	).Scan(&row.XPTotal, &row.Level, &row.Topic, &row.Gaps, &row.PathPosition, &row.Badges, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	row.UpdatedAt = parseTimestamp(updatedAt)
	return &row, nil
}

// UpdateProgress runs ensure, read, fn, write and event inserts in one transaction.
func (s *SQLiteStorage) UpdateProgress(ctx context.Context, sessionID, agentID string, fn UpdateFunc) (*ProgressRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensure(ctx, tx, sessionID, agentID); err != nil {
		return nil, err
	}
	row, err := getProgress(ctx, tx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	events, err := fn(row)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	row.UpdatedAt = parseTimestamp(now)
	_, err = tx.ExecContext(ctx,
		`UPDATE progress SET xp_total = ?, level = ?, topic = ?, gaps = ?, path_position = ?, badges = ?, updated_at = ?
		 WHERE session_id = ? AND agent_id = ?`,
		row.XPTotal, row.Level, row.Topic, row.Gaps, row.PathPosition, row.Badges, now,
		sessionID, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write progress: %w", err)
	}
	for _, ev := range events {
		if ev.SessionID == "" {
			ev.SessionID = sessionID
		}
		if ev.AgentID == "" {
			ev.AgentID = agentID
		}
		if err := s.appendEvent(ctx, tx, ev); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}
	return row, nil
}

// AppendEvent appends ev to the log and sets its ID and timestamp.
func (s *SQLiteStorage) AppendEvent(ctx context.Context, ev *EventRow) error {
	return s.appendEvent(ctx, s.db, ev)
}

func (s *SQLiteStorage) appendEvent(ctx context.Context, q querier, ev *EventRow) error {
	if ev.Payload == "" {
		ev.Payload = "{}"
	}
	ts := s.timestamp()
	result, err := q.ExecContext(ctx,
		`INSERT INTO events (session_id, agent_id, type, payload, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.AgentID, ev.Type, ev.Payload, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	ev.ID, _ = result.LastInsertId()
	ev.Timestamp = parseTimestamp(ts)
	return nil
}

// RecentEvents returns up to limit events for the pair, newest first.
func (s *SQLiteStorage) RecentEvents(ctx context.Context, sessionID, agentID string, limit int) ([]*EventRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, payload, ts FROM events
		 WHERE session_id = ? AND agent_id = ?
		 ORDER BY ts DESC, id DESC LIMIT ?`,
		sessionID, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*EventRow
	for rows.Next() {
		ev := &EventRow{SessionID: sessionID, AgentID: agentID}
		var ts string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Payload, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp = parseTimestamp(ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountProgress returns the number of progress records.
func (s *SQLiteStorage) CountProgress(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM progress").Scan(&n)
	return n, err
}

// CountEvents returns the number of logged events.
func (s *SQLiteStorage) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// parseTimestamp accepts the storage layout and RFC 3339; anything else is the zero time.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(tsLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
