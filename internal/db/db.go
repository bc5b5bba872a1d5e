package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Session lifecycle event types.
const (
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
	EventTurnPrompted   = "turn.prompted"
)

// Command pipeline event types.
const (
	EventCommandPlanned   = "command.planned"
	EventCommandRejected  = "command.rejected"
	EventCommandSimulated = "command.simulated"
	EventProviderError    = "provider.error"
	EventBreakerOpen      = "breaker.open"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates all tables: sessions, history, runs, events.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT,
			started_at INTEGER NOT NULL DEFAULT (unixepoch()),
			ended_at INTEGER,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_history_session_id ON history(session_id, id);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			workdir TEXT,
			timeout_ms INTEGER,
			status TEXT NOT NULL,
			exit_code INTEGER,
			duration_seconds REAL,
			last_error TEXT,
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_runs_session_id ON runs(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_runs_status_updated_at ON runs(status, updated_at);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
	`)
	return err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}
