package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"buildd/internal/faults"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultRecentLimit = 20
)

// Trigger is one check that asked for expiration.
type Trigger struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// StopEvent records why a daemon instance left the running state.
type StopEvent struct {
	ID           int64
	SessionID    string
	PID          int
	Status       string
	Reason       string
	Check        string
	Triggers     []Trigger
	FailedChecks int
	StartedAt    time.Time
	RecordedAt   time.Time
}

// Uptime returns how long the instance ran before the event.
func (e StopEvent) Uptime() time.Duration {
	if e.StartedAt.IsZero() || e.RecordedAt.Before(e.StartedAt) {
		return 0
	}
	return e.RecordedAt.Sub(e.StartedAt)
}

// Journal stores stop events in SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "journal", "open", "database path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrIO, "journal", "open", "create state directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "journal", "open", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, faults.Wrap(faults.ErrIO, "journal", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := retryOnBusy(ctx, func() error { return j.initSchema(ctx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts event and returns its assigned ID. A zero RecordedAt is set
// to the current time.
func (j *Journal) Record(ctx context.Context, event StopEvent) (int64, error) {
	if strings.TrimSpace(event.Status) == "" || strings.TrimSpace(event.Reason) == "" {
		return 0, faults.Wrap(faults.ErrConfiguration, "journal", "record", "status and reason are required", nil)
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now()
	}
	var triggers any
	if len(event.Triggers) > 0 {
		encoded, err := json.Marshal(event.Triggers)
		if err != nil {
			return 0, fmt.Errorf("marshal triggers: %w", err)
		}
		triggers = string(encoded)
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := j.db.ExecContext(ctx,
			`INSERT INTO stop_events (
                session_id, pid, status, reason, check_name, triggers_json,
                failed_checks, started_at, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.SessionID,
			event.PID,
			event.Status,
			event.Reason,
			nullableString(event.Check),
			triggers,
			event.FailedChecks,
			formatTime(event.StartedAt),
			formatTime(event.RecordedAt),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, faults.Wrap(faults.ErrIO, "journal", "record", "insert stop event", err)
	}
	return id, nil
}

// Recent returns up to limit events, newest first. A non-positive limit uses
// a default of 20.
func (j *Journal) Recent(ctx context.Context, limit int) ([]StopEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, pid, status, reason, check_name, triggers_json,
                failed_checks, started_at, recorded_at
         FROM stop_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "journal", "recent", "query stop events", err)
	}
	defer rows.Close()

	var events []StopEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrIO, "journal", "recent", "scan stop event", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (StopEvent, error) {
	var (
		event       StopEvent
		checkName   sql.NullString
		triggersRaw sql.NullString
		startedRaw  string
		recordedRaw string
	)
	if err := scanner.Scan(
		&event.ID,
		&event.SessionID,
		&event.PID,
		&event.Status,
		&event.Reason,
		&checkName,
		&triggersRaw,
		&event.FailedChecks,
		&startedRaw,
		&recordedRaw,
	); err != nil {
		return StopEvent{}, err
	}
	event.Check = checkName.String
	if triggersRaw.Valid && triggersRaw.String != "" {
		if err := json.Unmarshal([]byte(triggersRaw.String), &event.Triggers); err != nil {
			return StopEvent{}, fmt.Errorf("decode triggers: %w", err)
		}
	}
	event.StartedAt, _ = parseTime(startedRaw)
	event.RecordedAt, _ = parseTime(recordedRaw)
	return event, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
