package rpc

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"

	"go.olrik.dev/sshmcp/internal/sshsession"
)

func sendTestRequest(t *testing.T, s *Server, method string, params any) Response {
	t.Helper()

	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConnection(serverConn)
	}()

	if err := writeRequest(clientConn, method, params); err != nil {
		t.Fatalf("failed to write request: %v", err)
	}

	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()
	<-done

	var resp Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("failed to parse response JSON %q: %v", string(data), err)
		}
	}
	return resp
}

func newTestServer() *Server {
	registry := sshsession.NewSessionRegistry(nil)
	resolver := sshsession.NewUrlResolver(8723)
	return NewServer(registry, resolver, "test-version")
}

func TestDispatch_Status(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodStatus, struct{}{})
	if resp.Data == nil {
		t.Fatal("expected status data")
	}
}

func TestDispatch_Version(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodVersion, struct{}{})
	dataMap, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map data, got %T", resp.Data)
	}
	if dataMap["version"] != "test-version" {
		t.Errorf("expected version='test-version', got %v", dataMap["version"])
	}
}

func TestDispatch_ListEmpty(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodList, struct{}{})
	names, ok := resp.Data.([]interface{})
	if !ok {
		t.Fatalf("expected list data, got %T", resp.Data)
	}
	if len(names) != 0 {
		t.Errorf("expected empty list, got %v", names)
	}
}

func TestDispatch_ExecCommand_UnknownSession(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodExecCommand, ExecCommandParams{
		Name:        "nope",
		CommandText: "ls",
	})
	if len(resp.Messages) == 0 || resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestDispatch_ExecCommand_InvalidSourceBeforeSessionLookup(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodExecCommand, ExecCommandParams{
		Name:        "nope",
		CommandText: "ls",
		Source:      "bogus",
	})
	if len(resp.Messages) == 0 {
		t.Fatal("expected an error message")
	}
	if resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected ERROR status, got %+v", resp.Messages[0])
	}
	if !strings.Contains(resp.Messages[0].Message, "source 'bogus'") {
		t.Fatalf("expected the invalid-source error, not a session lookup error, got %q", resp.Messages[0].Message)
	}
}

func TestDispatch_ObserverUrl_NotFound(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodObserverUrl, NameParams{Name: "ghost"})
	if len(resp.Messages) == 0 || resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestDispatch_Disconnect_UnknownIsNoOp(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, MethodDisconnect, NameParams{Name: "ghost"})
	if len(resp.Messages) == 0 || resp.Messages[0].Status != "INFO" {
		t.Fatalf("expected info response, got %+v", resp)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	s := newTestServer()
	resp := sendTestRequest(t, s, "bogusMethod", struct{}{})
	if len(resp.Messages) == 0 || resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestDispatch_MalformedRequest(t *testing.T) {
	s := newTestServer()
	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConnection(serverConn)
	}()

	clientConn.Write([]byte("not json\n"))
	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()
	<-done

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected error response, got %+v", resp)
	}
}
