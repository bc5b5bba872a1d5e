package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID           string
	Title        sql.NullString
	StartedAt    int64
	EndedAt      sql.NullInt64
	InputTokens  int64
	OutputTokens int64
}

// CreateSession inserts a new session and returns its generated id.
func CreateSession(database *sql.DB, title string) (string, error) {
	id := uuid.NewString()
	_, err := database.Exec(
		`INSERT INTO sessions (id, title) VALUES (?, ?)`,
		id, nullIfEmpty(title),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func GetSession(database *sql.DB, id string) (*Session, error) {
	row := database.QueryRow(
		`SELECT id, title, started_at, ended_at, input_tokens, output_tokens
		   FROM sessions
		  WHERE id = ?`,
		id,
	)
	var s Session
	if err := row.Scan(&s.ID, &s.Title, &s.StartedAt, &s.EndedAt, &s.InputTokens, &s.OutputTokens); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LatestOpenSessionID returns the most recently started session without an
// end mark, or "" if none exists.
func LatestOpenSessionID(database *sql.DB) (string, error) {
	var id string
	err := database.QueryRow(
		`SELECT id FROM sessions WHERE ended_at IS NULL ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession stamps ended_at once; a second call reports false.
func EndSession(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(
		`UPDATE sessions SET ended_at = unixepoch() WHERE id = ? AND ended_at IS NULL`,
		id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AddSessionTokens accumulates token usage reported by the provider.
func AddSessionTokens(database *sql.DB, id string, input, output int) error {
	_, err := database.Exec(
		`UPDATE sessions
		    SET input_tokens = input_tokens + ?, output_tokens = output_tokens + ?
		  WHERE id = ?`,
		input, output, id,
	)
	return err
}

// ListSessions returns the most recent sessions, newest first.
func ListSessions(database *sql.DB, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := database.Query(
		`SELECT id, title, started_at, ended_at, input_tokens, output_tokens
		   FROM sessions
		  ORDER BY started_at DESC, rowid DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.StartedAt, &s.EndedAt, &s.InputTokens, &s.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendHistory appends one transcript line for a session.
func AppendHistory(database *sql.DB, sessionID, role, text string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if role != "user" && role != "assistant" {
		return fmt.Errorf("unsupported history role: %s", role)
	}
	_, err := database.Exec(
		`INSERT INTO history (session_id, role, text) VALUES (?, ?, ?)`,
		sessionID, role, text,
	)
	return err
}
