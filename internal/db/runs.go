package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	RunStatusPending    = "pending"
	RunStatusSimulating = "simulating"
	RunStatusDone       = "done"
	RunStatusFailed     = "failed"
)

var (
	ErrRunNotFound          = errors.New("run not found")
	ErrInvalidStatusTransit = errors.New("invalid run status transition")
)

type Run struct {
	ID              string
	SessionID       string
	Command         string
	Workdir         sql.NullString
	TimeoutMS       sql.NullInt64
	Status          string
	ExitCode        sql.NullInt64
	DurationSeconds sql.NullFloat64
	LastError       sql.NullString
	CreatedAt       int64
	UpdatedAt       int64
}

// CommandArgv decodes the stored command JSON back into an argv slice.
func (r *Run) CommandArgv() ([]string, error) {
	var argv []string
	if err := json.Unmarshal([]byte(r.Command), &argv); err != nil {
		return nil, fmt.Errorf("decode run command: %w", err)
	}
	return argv, nil
}

var runStatusTransitions = map[string]map[string]struct{}{
	RunStatusPending: {
		RunStatusSimulating: struct{}{},
		RunStatusFailed:     struct{}{},
	},
	RunStatusSimulating: {
		RunStatusDone:   struct{}{},
		RunStatusFailed: struct{}{},
	},
}

func IsValidRunStatusTransition(from, to string) bool {
	next, ok := runStatusTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// InsertRun records a planned command in pending status and returns the
// generated run id.
func InsertRun(database *sql.DB, sessionID string, command []string, workdir string, timeoutMS int64) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("session_id cannot be empty")
	}
	if len(command) == 0 {
		return "", fmt.Errorf("command cannot be empty")
	}
	data, err := json.Marshal(command)
	if err != nil {
		return "", fmt.Errorf("marshal run command: %w", err)
	}

	var timeout any
	if timeoutMS > 0 {
		timeout = timeoutMS
	}
	id := uuid.NewString()
	_, err = database.Exec(
		`INSERT INTO runs (id, session_id, command, workdir, timeout_ms, status) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sessionID, string(data), nullIfEmpty(workdir), timeout, RunStatusPending,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func GetRun(database *sql.DB, id string) (*Run, error) {
	row := database.QueryRow(
		`SELECT id, session_id, command, workdir, timeout_ms,
		        status, exit_code, duration_seconds, last_error, created_at, updated_at
		   FROM runs
		  WHERE id = ?`,
		id,
	)
	var r Run
	if err := row.Scan(
		&r.ID, &r.SessionID, &r.Command, &r.Workdir, &r.TimeoutMS,
		&r.Status, &r.ExitCode, &r.DurationSeconds, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &r, nil
}

// TransitionRunStatus moves a run between statuses with a guarded update:
// the row changes only if it is still in fromStatus. Returns whether a row
// was updated.
func TransitionRunStatus(database *sql.DB, id, fromStatus, toStatus, lastError string) (bool, error) {
	if !IsValidRunStatusTransition(fromStatus, toStatus) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransit, fromStatus, toStatus)
	}

	res, err := database.Exec(
		`UPDATE runs
		    SET status = ?, last_error = ?, updated_at = unixepoch()
		  WHERE id = ? AND status = ?`,
		toStatus, nullIfEmpty(truncateForDB(lastError)), id, fromStatus,
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

// CompleteRun marks a simulating run done and stores its outcome.
func CompleteRun(database *sql.DB, id string, exitCode int, durationSeconds float64) (bool, error) {
	res, err := database.Exec(
		`UPDATE runs
		    SET status = ?, exit_code = ?, duration_seconds = ?, updated_at = unixepoch()
		  WHERE id = ? AND status = ?`,
		RunStatusDone, exitCode, durationSeconds, id, RunStatusSimulating,
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

// CleanupStaleRuns fails any run left pending or simulating by a previous
// process.
func CleanupStaleRuns(database *sql.DB) (int64, error) {
	res, err := database.Exec(
		`UPDATE runs
		    SET status = ?, last_error = 'interrupted during startup cleanup', updated_at = unixepoch()
		  WHERE status IN (?, ?)`,
		RunStatusFailed, RunStatusPending, RunStatusSimulating,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func truncateForDB(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
