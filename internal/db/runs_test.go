package db

import (
	"database/sql"
	"errors"
	"testing"
)

func testSession(t *testing.T, database *sql.DB) string {
	t.Helper()
	id, err := CreateSession(database, "run tests")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestInsertAndGetRun(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)

	id, err := InsertRun(database, sessionID, []string{"ls", "-la"}, "/tmp", 1500)
	if err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := GetRun(database, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusPending {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if got.SessionID != sessionID {
		t.Fatalf("unexpected session_id: %s", got.SessionID)
	}
	if !got.Workdir.Valid || got.Workdir.String != "/tmp" {
		t.Fatalf("unexpected workdir: %+v", got.Workdir)
	}
	if !got.TimeoutMS.Valid || got.TimeoutMS.Int64 != 1500 {
		t.Fatalf("unexpected timeout_ms: %+v", got.TimeoutMS)
	}

	argv, err := got.CommandArgv()
	if err != nil {
		t.Fatal(err)
	}
	if len(argv) != 2 || argv[0] != "ls" || argv[1] != "-la" {
		t.Fatalf("unexpected argv: %v", argv)
	}
}

func TestInsertRun_OptionalFieldsNull(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)

	id, err := InsertRun(database, sessionID, []string{"pwd"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := GetRun(database, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Workdir.Valid {
		t.Fatalf("expected NULL workdir, got %q", got.Workdir.String)
	}
	if got.TimeoutMS.Valid {
		t.Fatalf("expected NULL timeout_ms, got %d", got.TimeoutMS.Int64)
	}
}

func TestInsertRun_Invalid(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)

	if _, err := InsertRun(database, "", []string{"ls"}, "", 0); err == nil {
		t.Fatal("expected empty session_id error")
	}
	if _, err := InsertRun(database, sessionID, nil, "", 0); err == nil {
		t.Fatal("expected empty command error")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	database := testDB(t)

	_, err := GetRun(database, "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got: %v", err)
	}
}

func TestTransitionRunStatus_Valid(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)
	id, err := InsertRun(database, sessionID, []string{"ls"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := TransitionRunStatus(database, id, RunStatusPending, RunStatusSimulating, "")
	if err != nil {
		t.Fatalf("TransitionRunStatus failed: %v", err)
	}
	if !ok {
		t.Fatal("expected transition success")
	}
	got, err := GetRun(database, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != RunStatusSimulating {
		t.Fatalf("unexpected status: %s", got.Status)
	}
}

func TestTransitionRunStatus_InvalidTransition(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)
	id, err := InsertRun(database, sessionID, []string{"ls"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = TransitionRunStatus(database, id, RunStatusPending, RunStatusDone, "")
	if !errors.Is(err, ErrInvalidStatusTransit) {
		t.Fatalf("expected ErrInvalidStatusTransit, got: %v", err)
	}
}

func TestTransitionRunStatus_StatusMismatch(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)
	id, err := InsertRun(database, sessionID, []string{"ls"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := TransitionRunStatus(database, id, RunStatusSimulating, RunStatusDone, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected transition failure on status mismatch")
	}
}

func TestTransitionRunStatus_RecordsError(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)
	id, err := InsertRun(database, sessionID, []string{"ls"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := TransitionRunStatus(database, id, RunStatusPending, RunStatusFailed, "provider unavailable")
	if err != nil || !ok {
		t.Fatalf("transition failed: ok=%v err=%v", ok, err)
	}
	got, err := GetRun(database, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastError.Valid || got.LastError.String != "provider unavailable" {
		t.Fatalf("unexpected last_error: %+v", got.LastError)
	}
}

func TestCompleteRun(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)
	id, err := InsertRun(database, sessionID, []string{"sleep", "1"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TransitionRunStatus(database, id, RunStatusPending, RunStatusSimulating, ""); err != nil {
		t.Fatal(err)
	}

	ok, err := CompleteRun(database, id, 0, 1.042)
	if err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
	if !ok {
		t.Fatal("expected completion success")
	}

	got, err := GetRun(database, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != RunStatusDone {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if !got.ExitCode.Valid || got.ExitCode.Int64 != 0 {
		t.Fatalf("unexpected exit_code: %+v", got.ExitCode)
	}
	if !got.DurationSeconds.Valid || got.DurationSeconds.Float64 != 1.042 {
		t.Fatalf("unexpected duration_seconds: %+v", got.DurationSeconds)
	}

	// A second completion must not fire; the run already left simulating.
	ok, err = CompleteRun(database, id, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected repeat completion to be a no-op")
	}
}

func TestCleanupStaleRuns(t *testing.T) {
	database := testDB(t)
	sessionID := testSession(t, database)

	pending, err := InsertRun(database, sessionID, []string{"a"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	simulating, err := InsertRun(database, sessionID, []string{"b"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TransitionRunStatus(database, simulating, RunStatusPending, RunStatusSimulating, ""); err != nil {
		t.Fatal(err)
	}
	done, err := InsertRun(database, sessionID, []string{"c"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TransitionRunStatus(database, done, RunStatusPending, RunStatusSimulating, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := CompleteRun(database, done, 0, 0.5); err != nil {
		t.Fatal(err)
	}

	n, err := CleanupStaleRuns(database)
	if err != nil {
		t.Fatalf("CleanupStaleRuns failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows updated, got %d", n)
	}

	assertStatus := func(id, want string) {
		t.Helper()
		got, err := GetRun(database, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != want {
			t.Fatalf("run=%s status=%s want=%s", id, got.Status, want)
		}
	}
	assertStatus(pending, RunStatusFailed)
	assertStatus(simulating, RunStatusFailed)
	assertStatus(done, RunStatusDone)
}
