// Package state records refresh run history in SQLite: one row per run
// with its diff counts, plus per-object events for fetch failures and
// parse warnings. The history is an audit trail; the snapshot itself
// lives in the store package.
package state

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// RunStatus is the lifecycle state of a refresh run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Event kinds recorded against a run.
const (
	EventFetchError   = "fetch_error"
	EventParseWarning = "parse_warning"
	EventCycle        = "cycle"
)

// Run is one refresh invocation.
type Run struct {
	ID          string
	Profile     string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	Total       int
	Added       int
	Modified    int
	Removed     int
	Unchanged   int
	Warnings    int
}

// Event is one per-object diagnostic recorded during a run.
type Event struct {
	RunID     string
	ObjectKey string
	Kind      string
	Message   string
	CreatedAt time.Time
}

// SQLiteStore persists run history using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new run history store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the SQLite database and initializes the schema. Use
// ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping run history database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize run history schema: %w", err)
	}
	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun inserts a new run in the running state.
func (s *SQLiteStore) CreateRun(profile string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("run history database not opened")
	}

	run := &Run{
		ID:        uuid.New().String(),
		Profile:   profile,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", "id", run.ID, "profile", profile)

	_, err := s.db.Exec(
		`INSERT INTO runs (id, profile, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Profile, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun finalizes a run with its status and diff counts.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string, total, added, modified, removed, unchanged, warnings int) error {
	if s.db == nil {
		return fmt.Errorf("run history database not opened")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ?,
		        objects_total = ?, added = ?, modified = ?, removed = ?, unchanged = ?, warnings = ?
		 WHERE id = ?`,
		string(status), now, nullString(errMsg),
		total, added, modified, removed, unchanged, warnings, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// RecordEvent stores one per-object diagnostic for a run.
func (s *SQLiteStore) RecordEvent(runID, objectKey, kind, message string) error {
	if s.db == nil {
		return fmt.Errorf("run history database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO run_events (run_id, object_key, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, objectKey, kind, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("run history database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, profile, status, started_at, completed_at, error,
		        objects_total, added, modified, removed, unchanged, warnings
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetEvents returns the diagnostics recorded for a run.
func (s *SQLiteStore) GetEvents(runID string) ([]*Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("run history database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id, object_key, kind, message, created_at
		 FROM run_events WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.RunID, &e.ObjectKey, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanRun(rows *sql.Rows) (*Run, error) {
	run := &Run{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := rows.Scan(&run.ID, &run.Profile, &status, &run.StartedAt, &completedAt, &errMsg,
		&run.Total, &run.Added, &run.Modified, &run.Removed, &run.Unchanged, &run.Warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
