// Package auditlog is an append-only SQLite sink for session and command
// lifecycle events. It exists purely for post-hoc observability: nothing in
// internal/sshsession reads it back, and a daemon restart never rehydrates
// queues, history or replay buffers from it. Losing the file loses audit
// trail, not session state.
package auditlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.olrik.dev/sshmcp/internal/sshsession"
)

// Log wraps the SQLite connection backing the audit trail.
type Log struct {
	conn *sql.DB
	path string
}

// Open opens or creates the audit database at path, creating its parent
// directory and schema as needed.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	l := &Log{conn: conn, path: path}
	if err := l.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize audit log schema: %w", err)
	}
	return l, nil
}

// Close flushes the WAL and closes the connection.
func (l *Log) Close() error {
	if l.conn != nil {
		l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return l.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint. Used by callers that want a durability
// point without closing the connection (e.g. before daemon shutdown).
func (l *Log) Flush() error {
	if l.conn != nil {
		_, err := l.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

func (l *Log) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_name TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS command_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_name TEXT NOT NULL,
		source TEXT NOT NULL,
		command_text TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER,
		enqueued_at_ms INTEGER,
		started_at_ms INTEGER,
		duration_ms INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_session_events_name ON session_events(session_name);
	CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_command_events_name ON command_events(session_name);
	CREATE INDEX IF NOT EXISTS idx_command_events_timestamp ON command_events(timestamp);
	`
	_, err := l.conn.Exec(schema)
	return err
}

// SessionEvent records a session lifecycle transition (created, connected,
// disconnected, auth failed, ...). Best-effort: a write that still fails
// after execRetrying's retries is dropped without being reported, so it never
// blocks session operation.
func (l *Log) SessionEvent(sessionName, eventType, details string) {
	l.execRetrying(
		`INSERT INTO session_events (session_name, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?)`,
		sessionName, eventType, details, time.Now(),
	)
}

// CommandEvent records the outcome of one executed command.
func (l *Log) CommandEvent(rec sshsession.CommandRecord) {
	l.execRetrying(
		`INSERT INTO command_events
		 (session_name, source, command_text, status, exit_code, enqueued_at_ms, started_at_ms, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionName, string(rec.Source), rec.CommandText, rec.Status, rec.ExitCode,
		rec.EnqueuedAtMs, rec.StartedAtMs, rec.DurationMs, time.Now(),
	)
}

// execRetrying retries briefly on SQLITE_BUSY since the audit log is
// best-effort and must never become a bottleneck for session operation.
func (l *Log) execRetrying(query string, args ...any) {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := l.conn.Exec(query, args...)
		if err == nil {
			return
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return
	}
}

// SessionEventRow is one row retrieved from the session_events table.
type SessionEventRow struct {
	ID          int64
	SessionName string
	EventType   string
	Details     string
	Timestamp   time.Time
}

// RecentSessionEvents retrieves the most recent session lifecycle events,
// newest first.
func (l *Log) RecentSessionEvents(limit int) ([]SessionEventRow, error) {
	rows, err := l.conn.Query(
		`SELECT id, session_name, event_type, details, timestamp
		 FROM session_events ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SessionEventRow
	for rows.Next() {
		var e SessionEventRow
		if err := rows.Scan(&e.ID, &e.SessionName, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CommandEventRow is one row retrieved from the command_events table.
type CommandEventRow struct {
	ID           int64
	SessionName  string
	Source       string
	CommandText  string
	Status       string
	ExitCode     int
	EnqueuedAtMs int64
	StartedAtMs  int64
	DurationMs   int64
	Timestamp    time.Time
}

// RecentCommandEvents retrieves the most recent command executions across
// all sessions, newest first.
func (l *Log) RecentCommandEvents(limit int) ([]CommandEventRow, error) {
	rows, err := l.conn.Query(
		`SELECT id, session_name, source, command_text, status, exit_code, enqueued_at_ms, started_at_ms, duration_ms, timestamp
		 FROM command_events ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CommandEventRow
	for rows.Next() {
		var e CommandEventRow
		if err := rows.Scan(&e.ID, &e.SessionName, &e.Source, &e.CommandText, &e.Status, &e.ExitCode,
			&e.EnqueuedAtMs, &e.StartedAtMs, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
