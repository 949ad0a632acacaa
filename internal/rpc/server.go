package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"go.olrik.dev/sshmcp/internal/core"
	"go.olrik.dev/sshmcp/internal/sshsession"
)

// Server is the process-wide IPC endpoint: one Unix socket, one
// SessionRegistry, dispatching each request line to the matching registry
// operation.
type Server struct {
	registry *sshsession.SessionRegistry
	resolver *sshsession.UrlResolver
	listener net.Listener
	version  string
}

// NewServer creates a dispatcher over registry. version is reported by the
// "version"/"status" methods for client/daemon mismatch detection.
func NewServer(registry *sshsession.SessionRegistry, resolver *sshsession.UrlResolver, version string) *Server {
	return &Server{registry: registry, resolver: resolver, version: version}
}

// Run listens on the configured socket path and serves connections until the
// listener is closed. Mirrors the teacher's accept loop: one goroutine per
// connection, one request per connection.
func (s *Server) Run() error {
	socketPath := core.GetSocketPath()

	if _, err := os.Stat(socketPath); err == nil {
		if conn, dialErr := net.Dial("unix", socketPath); dialErr == nil {
			conn.Close()
			return fmt.Errorf("daemon is already running (socket %s is live)", socketPath)
		}
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("could not remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("could not create socket listener: %w", err)
	}
	s.listener = listener
	defer os.Remove(socketPath)

	pidPath := core.GetPIDFilePath()
	os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidPath)

	slog.Info("daemon listening", "socket", socketPath)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		resp := Response{}
		resp.AddMessage(fmt.Sprintf("malformed request: %v", err), "ERROR")
		conn.Write([]byte(resp.ToJSON()))
		return
	}

	if req.Method != MethodStatus && req.Method != MethodVersion {
		slog.Info("dispatching request", "method", req.Method)
	}

	if req.Method == MethodAttach {
		s.handleAttach(conn, scanner, req)
		return
	}

	resp := s.dispatch(req, conn)
	conn.Write([]byte(resp.ToJSON()))
}

// handleAttach upgrades the connection into a full-duplex stream: an
// initial replay-buffer snapshot, then every subsequent normalized output
// entry, while concurrently accepting input/signal/resize frames from the
// client. It stands in for the spec's out-of-scope observer socket so the
// CLI has something to attach to.
func (s *Server) handleAttach(conn net.Conn, scanner *bufio.Scanner, req Request) {
	var p NameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeFrame(conn, AttachFrame{Type: "error", Error: err.Error()})
		return
	}

	session, err := s.registry.Get(p.Name)
	if err != nil {
		writeFrame(conn, AttachFrame{Type: "error", Error: err.Error()})
		return
	}

	snapshot := session.Snapshot()
	if err := writeFrame(conn, AttachFrame{Type: "snapshot", Entries: snapshot}); err != nil {
		return
	}

	obs := session.Subscribe()
	defer session.Unsubscribe(obs.ID())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for entry := range obs.Entries() {
			e := entry
			if err := writeFrame(conn, AttachFrame{Type: "entry", Entry: &e}); err != nil {
				return
			}
		}
	}()

	for scanner.Scan() {
		var frame AttachFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "input":
			session.SendInput([]byte(frame.Text))
		case "signal":
			session.SendSignal(frame.Signal)
		case "resize":
			session.Resize(frame.Cols, frame.Rows)
		}
	}

	<-writerDone
}

func writeFrame(conn net.Conn, frame AttachFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

func (s *Server) dispatch(req Request, conn net.Conn) Response {
	var resp Response

	switch req.Method {
	case MethodStatus:
		resp.AddData(map[string]any{"sessions": s.registry.List()})

	case MethodVersion:
		resp.AddData(map[string]any{"version": s.version})

	case MethodCreateSession:
		var p CreateSessionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		stream := NewStreamingResponse(conn)
		stream.WriteMessage(fmt.Sprintf("connecting to %s@%s:%d", p.Username, p.Host, p.Port), "INFO")
		_, err := s.registry.Create(sshsession.SessionConfig{
			Name:     p.Name,
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			Auth: sshsession.AuthMethod{
				PrivateKeyText: p.PrivateKeyText,
				KeyFilePath:    p.KeyFilePath,
				Passphrase:     p.Passphrase,
				Password:       p.Password,
			},
		})
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddMessage(fmt.Sprintf("session '%s' connected", p.Name), "INFO")
		if s.resolver != nil {
			resp.AddData(map[string]any{"observerUrl": s.resolver.ObserverUrl(p.Name)})
		}

	case MethodExecCommand:
		var p ExecCommandParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		source := sshsession.SourceProgramClient
		if p.Source != "" {
			source = sshsession.Source(p.Source)
		}
		result, err := s.registry.ExecCommand(p.Name, p.CommandText, sshsession.CommandOptions{
			TimeoutMs: p.TimeoutMs,
			Source:    source,
		})
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddData(result)

	case MethodSendInput:
		var p SendInputParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		session, err := s.registry.Get(p.Name)
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		if p.Raw {
			err = session.SendRawInput([]byte(p.Text))
		} else {
			err = session.SendInput([]byte(p.Text))
		}
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddMessage("input sent", "INFO")

	case MethodSendSignal:
		var p SendSignalParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		session, err := s.registry.Get(p.Name)
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		if err := session.SendSignal(p.Signal); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddMessage("signal sent", "INFO")

	case MethodResize:
		var p ResizeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		session, err := s.registry.Get(p.Name)
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		if err := session.Resize(p.Cols, p.Rows); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddMessage("resized", "INFO")

	case MethodHistory:
		var p NameParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		session, err := s.registry.Get(p.Name)
		if err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		resp.AddData(session.History())

	case MethodList:
		resp.AddData(s.registry.List())

	case MethodObserverUrl:
		var p NameParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		if !s.registry.Has(p.Name) {
			resp.AddMessage(fmt.Sprintf("session '%s' not found", p.Name), "ERROR")
			return resp
		}
		resp.AddData(map[string]any{"observerUrl": s.resolver.ObserverUrl(p.Name)})

	case MethodDisconnect:
		var p NameParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.AddMessage(err.Error(), "ERROR")
			return resp
		}
		s.registry.Disconnect(p.Name)
		resp.AddMessage(fmt.Sprintf("session '%s' disconnected", p.Name), "INFO")

	default:
		resp.AddMessage(fmt.Sprintf("unknown method: %s", req.Method), "ERROR")
	}

	return resp
}
