package sshsession

import (
	"strings"
	"testing"
	"time"

	"go.olrik.dev/sshmcp/internal/testutil/sshserver"
)

func startTestServer(t *testing.T) *sshserver.Server {
	t.Helper()
	srv := sshserver.New(t, sshserver.Options{
		Username: "tester",
		Password: "secret",
	})
	srv.Start()
	t.Cleanup(srv.Stop)
	return srv
}

func connectTestSession(t *testing.T, srv *sshserver.Server, name string) *ShellSession {
	t.Helper()
	session, err := Connect(SessionConfig{
		Name:     name,
		Host:     "127.0.0.1",
		Port:     srv.Port(),
		Username: "tester",
		Auth:     AuthMethod{Password: "secret"},
	}, NewKeyMaterialLoader(), nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { session.Disconnect("test cleanup") })
	return session
}

func TestConnect_ExecutesCommandAndReturnsOutput(t *testing.T) {
	srv := startTestServer(t)
	session := connectTestSession(t, srv, "exec-box")

	result, err := session.Exec("echo hello-world", CommandOptions{Source: SourceProgramClient})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if !strings.Contains(result.Stdout, "hello-world") {
		t.Fatalf("expected stdout to contain 'hello-world', got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestConnect_RejectsExitCommand(t *testing.T) {
	srv := startTestServer(t)
	session := connectTestSession(t, srv, "guard-box")

	_, err := session.Exec("exit", CommandOptions{Source: SourceProgramClient})
	if err == nil {
		t.Fatal("expected exit to be rejected")
	}
	if KindOf(err) != ShellTerminatingCommandRejected {
		t.Fatalf("expected ShellTerminatingCommandRejected, got %v", KindOf(err))
	}
}

func TestConnect_HistoryRecordsExecutedCommands(t *testing.T) {
	srv := startTestServer(t)
	session := connectTestSession(t, srv, "history-box")

	if _, err := session.Exec("echo one", CommandOptions{Source: SourceProgramClient}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	history := session.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
	if history[0].CommandText != "echo one" {
		t.Fatalf("unexpected command text: %q", history[0].CommandText)
	}
	if history[0].Status != "success" {
		t.Fatalf("expected success status, got %q", history[0].Status)
	}
}

func TestConnect_ObserverReceivesLiveOutput(t *testing.T) {
	srv := startTestServer(t)
	session := connectTestSession(t, srv, "observer-box")

	obs := session.Subscribe()
	defer session.Unsubscribe(obs.ID())

	if _, err := session.Exec("echo observed-output", CommandOptions{Source: SourceProgramClient}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case entry := <-obs.Entries():
			if strings.Contains(entry.NormalizedText, "observed-output") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for observer to see the command's output")
		}
	}
}

func TestConnect_DisconnectFailsSubsequentExec(t *testing.T) {
	srv := startTestServer(t)
	session := connectTestSession(t, srv, "teardown-box")

	session.Disconnect("test")

	_, err := session.Exec("echo late", CommandOptions{Source: SourceProgramClient})
	if err == nil {
		t.Fatal("expected exec on a disconnected session to fail")
	}
}

func TestSessionRegistry_CreateAndExecCommand_Integration(t *testing.T) {
	srv := startTestServer(t)
	registry := NewSessionRegistry(nil)

	_, err := registry.Create(SessionConfig{
		Name:     "registry-box",
		Host:     "127.0.0.1",
		Port:     srv.Port(),
		Username: "tester",
		Auth:     AuthMethod{Password: "secret"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { registry.Disconnect("registry-box") })

	result, err := registry.ExecCommand("registry-box", "echo via-registry", CommandOptions{Source: SourceProgramClient})
	if err != nil {
		t.Fatalf("ExecCommand failed: %v", err)
	}
	if !strings.Contains(result.Stdout, "via-registry") {
		t.Fatalf("expected stdout to contain 'via-registry', got %q", result.Stdout)
	}
}
