package audit

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) *sqlx.DB {
	tmpDir := t.TempDir()
	dbPath := path.Join(tmpDir, "test_runs.db")
	db := sqlx.MustConnect("sqlite3", dbPath)
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func TestNewLogger(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)

	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	if logger.db == nil {
		t.Fatal("Logger's internal db is nil")
	}
}

func TestDBInit(t *testing.T) {
	db := setupTestDB(t)
	err := DBInit(db)

	if err != nil {
		t.Fatalf("DBInit returned error: %v", err)
	}

	// Verify table exists
	var tableName string
	err = db.Get(&tableName, "SELECT name FROM sqlite_master WHERE type='table' AND name='run_events'")
	if err != nil {
		t.Fatalf("Table 'run_events' does not exist: %v", err)
	}

	// Verify indexes exist
	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='run_events'")
	if err != nil {
		t.Fatalf("Failed to query indexes: %v", err)
	}
	if count < 3 {
		t.Errorf("Expected at least 3 indexes, got %d", count)
	}
}

func TestRunLifecycleEvents(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	runID := NewRunID()
	if err := logger.LogRunStarted(runID, "port=8503 address=0.0.0.0"); err != nil {
		t.Fatalf("LogRunStarted returned error: %v", err)
	}
	if err := logger.LogEnvCreated(runID, "/opt/demos/.venv"); err != nil {
		t.Fatalf("LogEnvCreated returned error: %v", err)
	}
	if err := logger.LogDepsSynced(runID, "/opt/demos/requirements.txt"); err != nil {
		t.Fatalf("LogDepsSynced returned error: %v", err)
	}
	if err := logger.LogRunExited(runID, 0); err != nil {
		t.Fatalf("LogRunExited returned error: %v", err)
	}

	events, err := logger.GetRunEvents(runID)
	if err != nil {
		t.Fatalf("GetRunEvents returned error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}
	if events[0].EventType != string(EventRunStarted) {
		t.Errorf("Expected first event run_started, got %s", events[0].EventType)
	}
	if events[3].EventType != string(EventRunExited) {
		t.Errorf("Expected last event run_exited, got %s", events[3].EventType)
	}
	if events[3].ExitCode == nil || *events[3].ExitCode != 0 {
		t.Errorf("Expected exit code 0 on run_exited, got %v", events[3].ExitCode)
	}
	if events[0].ExitCode != nil {
		t.Errorf("Expected no exit code on run_started, got %v", events[0].ExitCode)
	}
}

func TestLogLaunchFailed(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	runID := NewRunID()
	if err := logger.LogLaunchFailed(runID, "port in use", 1); err != nil {
		t.Fatalf("LogLaunchFailed returned error: %v", err)
	}

	events, err := logger.GetEventsByType(EventLaunchFailed, 10)
	if err != nil {
		t.Fatalf("GetEventsByType returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 launch_failed event, got %d", len(events))
	}
	if events[0].Detail != "port in use" {
		t.Errorf("Expected detail 'port in use', got %q", events[0].Detail)
	}
	if events[0].ExitCode == nil || *events[0].ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %v", events[0].ExitCode)
	}
}

func TestGetRecentRuns(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	first := NewRunID()
	second := NewRunID()
	if err := logger.LogRunStarted(first, ""); err != nil {
		t.Fatalf("LogRunStarted returned error: %v", err)
	}
	if err := logger.LogRunExited(first, 1); err != nil {
		t.Fatalf("LogRunExited returned error: %v", err)
	}
	if err := logger.LogRunStarted(second, ""); err != nil {
		t.Fatalf("LogRunStarted returned error: %v", err)
	}

	runs, err := logger.GetRecentRuns(10)
	if err != nil {
		t.Fatalf("GetRecentRuns returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	for _, run := range runs {
		switch run.RunID {
		case first:
			if run.Events != 2 {
				t.Errorf("Expected 2 events for first run, got %d", run.Events)
			}
			if run.LastEvent != string(EventRunExited) {
				t.Errorf("Expected last event run_exited for first run, got %s", run.LastEvent)
			}
		case second:
			if run.Events != 1 {
				t.Errorf("Expected 1 event for second run, got %d", run.Events)
			}
		default:
			t.Errorf("Unexpected run ID %s", run.RunID)
		}
	}
}

func TestDeleteOldEvents(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	runID := NewRunID()
	if err := logger.LogRunStarted(runID, ""); err != nil {
		t.Fatalf("LogRunStarted returned error: %v", err)
	}

	// Backdate the event so it falls outside the retention window.
	old := time.Now().UTC().Add(-48 * time.Hour).Unix()
	if _, err := db.Exec("UPDATE run_events SET timestamp = $1", old); err != nil {
		t.Fatalf("Failed to backdate events: %v", err)
	}

	deleted, err := logger.DeleteOldEvents(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldEvents returned error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted event, got %d", deleted)
	}

	events, err := logger.GetRunEvents(runID)
	if err != nil {
		t.Fatalf("GetRunEvents returned error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events after pruning, got %d", len(events))
	}
}
