package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventType represents the type of run lifecycle event
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventEnvCreated   EventType = "env_created"
	EventDepsSynced   EventType = "deps_synced"
	EventLaunchFailed EventType = "launch_failed"
	EventRunExited    EventType = "run_exited"
	EventRestart      EventType = "restart"
)

// RunEvent represents a run history entry in the database
type RunEvent struct {
	ID        string `db:"id"`
	RunID     string `db:"run_id"`
	EventType string `db:"event_type"`
	Timestamp int64  `db:"timestamp"`
	Detail    string `db:"detail"`
	ExitCode  *int   `db:"exit_code"` // Nullable for events without an exit code
}

// RunSummary is an aggregated view of one launcher run.
type RunSummary struct {
	RunID     string `db:"run_id"`
	StartedAt int64  `db:"started_at"`
	LastEvent string `db:"last_event"`
	Events    int    `db:"events"`
}

// Logger records launcher run history events
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a new run history logger instance
func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{
		db: db,
	}, nil
}

// DBInit initializes the run events database table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS run_events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		detail TEXT,
		exit_code INTEGER
	)
	`)
	if err != nil {
		return err
	}

	// Create indexes for common queries
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_events_timestamp ON run_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_events_event_type ON run_events(event_type)`)
	return err
}

// NewRunID generates the identifier shared by all events of one run.
func NewRunID() string {
	return uuid.New().String()
}

// insertEvent is a helper method to insert a run event into the database
func (l *Logger) insertEvent(event *RunEvent) error {
	_, err := l.db.Exec(`
		INSERT INTO run_events (
			id, run_id, event_type, timestamp, detail, exit_code
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID,
		event.RunID,
		event.EventType,
		event.Timestamp,
		event.Detail,
		event.ExitCode,
	)
	return err
}

func (l *Logger) log(runID string, eventType EventType, detail string, exitCode *int) error {
	return l.insertEvent(&RunEvent{
		ID:        uuid.New().String(),
		RunID:     runID,
		EventType: string(eventType),
		Timestamp: time.Now().UTC().Unix(),
		Detail:    detail,
		ExitCode:  exitCode,
	})
}

// LogRunStarted logs the start of a launcher run
func (l *Logger) LogRunStarted(runID, detail string) error {
	return l.log(runID, EventRunStarted, detail, nil)
}

// LogEnvCreated logs creation of a fresh virtual environment
func (l *Logger) LogEnvCreated(runID, venvPath string) error {
	return l.log(runID, EventEnvCreated, venvPath, nil)
}

// LogDepsSynced logs a completed dependency synchronization
func (l *Logger) LogDepsSynced(runID, manifest string) error {
	return l.log(runID, EventDepsSynced, manifest, nil)
}

// LogLaunchFailed logs a failed server launch with the child's exit code
func (l *Logger) LogLaunchFailed(runID, detail string, exitCode int) error {
	return l.log(runID, EventLaunchFailed, detail, &exitCode)
}

// LogRunExited logs the end of a run with its final exit code
func (l *Logger) LogRunExited(runID string, exitCode int) error {
	return l.log(runID, EventRunExited, "", &exitCode)
}

// LogRestart logs a supervised restart of the server process
func (l *Logger) LogRestart(runID, reason string) error {
	return l.log(runID, EventRestart, reason, nil)
}

// GetRunEvents retrieves the events of a specific run in order
func (l *Logger) GetRunEvents(runID string) ([]RunEvent, error) {
	var events []RunEvent
	err := l.db.Select(&events,
		"SELECT * FROM run_events WHERE run_id = $1 ORDER BY timestamp ASC, id ASC",
		runID)
	return events, err
}

// GetEventsByType retrieves run events of a specific type
func (l *Logger) GetEventsByType(eventType EventType, limit int) ([]RunEvent, error) {
	var events []RunEvent
	err := l.db.Select(&events,
		"SELECT * FROM run_events WHERE event_type = $1 ORDER BY timestamp DESC LIMIT $2",
		string(eventType), limit)
	return events, err
}

// GetRecentRuns retrieves summaries of the most recent runs
func (l *Logger) GetRecentRuns(limit int) ([]RunSummary, error) {
	var runs []RunSummary
	err := l.db.Select(&runs, `
		SELECT run_id,
		       MIN(timestamp) AS started_at,
		       (SELECT event_type FROM run_events e2
		        WHERE e2.run_id = run_events.run_id
		        ORDER BY e2.timestamp DESC, e2.id DESC LIMIT 1) AS last_event,
		       COUNT(*) AS events
		FROM run_events
		GROUP BY run_id
		ORDER BY started_at DESC
		LIMIT $1`,
		limit)
	return runs, err
}

// DeleteOldEvents deletes run events older than the specified duration
func (l *Logger) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec("DELETE FROM run_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
