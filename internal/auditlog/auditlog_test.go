package auditlog

import (
	"os"
	"path/filepath"
	"testing"

	"go.olrik.dev/sshmcp/internal/sshsession"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "audit.db")
	l, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "audit.db")

	l, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("audit log file was not created")
	}

	if err := l.Close(); err != nil {
		t.Errorf("Failed to close audit log: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "subdir", "audit.db")

	l, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open audit log with nested path: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("audit log file was not created in nested directory")
	}
}

func TestSessionEvent(t *testing.T) {
	l := openTestLog(t)

	l.SessionEvent("build-box", "connected", "host=example.com")

	events, err := l.RecentSessionEvents(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 session event, got %d", len(events))
	}
	if events[0].SessionName != "build-box" {
		t.Errorf("expected session_name='build-box', got %q", events[0].SessionName)
	}
	if events[0].EventType != "connected" {
		t.Errorf("expected event_type='connected', got %q", events[0].EventType)
	}
}

func TestCommandEvent(t *testing.T) {
	l := openTestLog(t)

	rec := sshsession.CommandRecord{
		CommandText:  "ls -la",
		EnqueuedAtMs: 1000,
		StartedAtMs:  1010,
		DurationMs:   40,
		ExitCode:     0,
		Status:       "success",
		SessionName:  "build-box",
		Source:       sshsession.SourceProgramClient,
	}
	l.CommandEvent(rec)

	events, err := l.RecentCommandEvents(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 command event, got %d", len(events))
	}
	got := events[0]
	if got.SessionName != "build-box" {
		t.Errorf("expected session_name='build-box', got %q", got.SessionName)
	}
	if got.CommandText != "ls -la" {
		t.Errorf("expected command_text='ls -la', got %q", got.CommandText)
	}
	if got.Source != "programClient" {
		t.Errorf("expected source='programClient', got %q", got.Source)
	}
	if got.ExitCode != 0 {
		t.Errorf("expected exit_code=0, got %d", got.ExitCode)
	}
}

func TestRecentEvents_RespectsLimit(t *testing.T) {
	l := openTestLog(t)

	for i := 0; i < 5; i++ {
		l.SessionEvent("build-box", "ping", "")
	}

	events, err := l.RecentSessionEvents(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestTablesCreated(t *testing.T) {
	l := openTestLog(t)

	expectedTables := []string{"session_events", "command_events"}
	for _, tableName := range expectedTables {
		var count int
		err := l.conn.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='table' AND name=?
		`, tableName).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check for table '%s': %v", tableName, err)
		}
		if count != 1 {
			t.Errorf("Expected table '%s' to exist", tableName)
		}
	}
}

func TestFlush(t *testing.T) {
	l := openTestLog(t)

	l.SessionEvent("build-box", "ping", "")

	if err := l.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestFlush_NilConn(t *testing.T) {
	l := &Log{conn: nil}

	if err := l.Flush(); err != nil {
		t.Errorf("Flush() on nil conn error = %v", err)
	}
}

func TestClose_NilConn(t *testing.T) {
	l := &Log{conn: nil}

	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil conn error = %v", err)
	}
}
