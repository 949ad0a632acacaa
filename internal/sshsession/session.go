package sshsession

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"go.olrik.dev/sshmcp/internal/keyring"
)

// AuditSink is the write-only observability hook a ShellSession reports
// lifecycle and command events to. A nil sink is a valid no-op.
type AuditSink interface {
	SessionEvent(sessionName, eventType, details string)
	CommandEvent(rec CommandRecord)
}

// ShellSession wraps one SSH client plus one interactive shell channel. Its
// mutable state (ready, queue, executing, current) is owned
// exclusively by the run loop goroutine started in Connect — every external
// operation is a message sent to its inbox, which is how the design's
// "atomic decision step" falls out naturally instead of needing a mutex.
type ShellSession struct {
	name string
	host string

	client  *ssh.Client
	sess    *ssh.Session
	stdin   io.WriteCloser
	keyLoad *KeyMaterialLoader

	replayBuffer *ReplayBuffer
	observers    *ObserverFanout
	history      *CommandHistory
	audit        AuditSink

	inbox  chan any
	closed chan struct{}
	once   sync.Once

	// actor-owned state, touched only inside run()
	ready     bool
	queue     *CommandQueue
	executing bool
	current   *ActiveCommand
}

type execMsg struct {
	commandText string
	options     CommandOptions
	reply       chan commandResult
}

type inputMsg struct {
	data  []byte
	reply chan error
}

type signalMsg struct {
	name  string
	reply chan error
}

type resizeMsg struct {
	cols, rows int
	reply      chan error
}

type ptyBytesMsg struct {
	stream Stream
	data   []byte
}

type timeoutMsg struct {
	target *ActiveCommand
}

type closeMsg struct {
	reason string
	reply  chan struct{}
}

var signalBytes = map[string]byte{
	"SIGINT":  0x03,
	"SIGTERM": 0x04,
	"SIGQUIT": 0x04,
	"SIGTSTP": 0x1A,
}

// Connect dials the SSH transport described by cfg, requests a PTY, starts
// the remote shell, and runs the fixed two-phase init handshake before
// returning a ready ShellSession. A connection that does not complete within
// ConnectTimeout is aborted and no session is returned.
func Connect(cfg SessionConfig, keyLoad *KeyMaterialLoader, audit AuditSink) (*ShellSession, error) {
	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         ConnectTimeout,
	}

	auth, err := resolveAuthMethod(cfg, keyLoad)
	if err != nil {
		return nil, err
	}
	clientConfig.Auth = []ssh.AuthMethod{auth}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, newError(ConnectTimedOut, "connection to %s timed out", cfg.Host)
		}
		return nil, newError(TransportAuthFailed, "failed to connect to %s: %v", cfg.Host, err)
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to open session: %v", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to open stdin pipe: %v", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to open stdout pipe: %v", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to open stderr pipe: %v", err)
	}

	if err := sess.Setenv("TERM", "xterm-256color"); err != nil {
		slog.Warn("ssh session: remote rejected TERM env", "session", cfg.Name, "error", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:   1,
		ssh.ECHOE:  1,
		ssh.ECHOK:  1,
		ssh.ECHONL: 0,
		ssh.ICANON: 1,
		ssh.ICRNL:  1,
		ssh.ONLCR:  1,
		ssh.OPOST:  1,
	}
	if err := sess.RequestPty("xterm-256color", DefaultRows, DefaultCols, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to request pty: %v", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, newError(TransportAuthFailed, "failed to start shell: %v", err)
	}

	s := &ShellSession{
		name:         cfg.Name,
		host:         cfg.Host,
		client:       client,
		sess:         sess,
		stdin:        stdin,
		keyLoad:      keyLoad,
		replayBuffer: NewReplayBuffer(),
		observers:    NewObserverFanout(),
		history:      NewCommandHistory(),
		audit:        audit,
		inbox:        make(chan any, 64),
		closed:       make(chan struct{}),
		queue:        NewCommandQueue(),
	}

	if err := s.runHandshake(stdout); err != nil {
		sess.Close()
		client.Close()
		return nil, err
	}

	go s.run()
	go s.pumpPty(stdout, StreamStdout)
	go s.pumpPty(stderr, StreamStderr)

	if audit != nil {
		audit.SessionEvent(s.name, "connected", fmt.Sprintf("host=%s", cfg.Host))
	}

	return s, nil
}

func resolveAuthMethod(cfg SessionConfig, keyLoad *KeyMaterialLoader) (ssh.AuthMethod, error) {
	auth := cfg.Auth

	if auth.PrivateKeyText != "" {
		signer, err := parseSigner([]byte(auth.PrivateKeyText), auth.Passphrase)
		if err != nil {
			return nil, err
		}
		return ssh.PublicKeys(signer), nil
	}

	if auth.KeyFilePath != "" {
		keyBytes, err := keyLoad.LoadKey(auth.KeyFilePath)
		if err != nil {
			return nil, err
		}
		passphrase := auth.Passphrase
		if passphrase == "" {
			if stored, err := keyring.GetPassword(cfg.Name); err == nil {
				passphrase = stored
			}
		}
		signer, err := parseSigner(keyBytes, passphrase)
		if err != nil {
			return nil, err
		}
		return ssh.PublicKeys(signer), nil
	}

	password := auth.Password
	if password == "" {
		if stored, err := keyring.GetPassword(cfg.Name); err == nil {
			password = stored
		}
	}
	if password != "" {
		return ssh.Password(password), nil
	}

	return nil, newError(TransportAuthFailed, "no usable authentication method supplied")
}

func parseSigner(keyBytes []byte, passphrase string) (ssh.Signer, error) {
	if IsEncrypted(keyBytes) {
		if passphrase == "" {
			return nil, newError(KeyEncryptedNoPassphrase, "Key is encrypted but no passphrase provided")
		}
		signer, err := ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
		if err != nil {
			return nil, newError(TransportAuthFailed, "failed to parse private key: %v", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, newError(TransportAuthFailed, "failed to parse private key: %v", err)
	}
	return signer, nil
}

var reNullRedirect = regexp.MustCompile(`null 2>&1`)

// runHandshake executes the fixed two-phase handshake described in the
// design, buffering every byte internally until it completes: nothing here
// is exposed to observers or the replay buffer until step 5.
func (s *ShellSession) runHandshake(stdout io.Reader) error {
	type readResult struct {
		buf string
		err error
	}
	deadline := time.NewTimer(ConnectTimeout)
	defer deadline.Stop()

	readUntil := func(predicate func(string) bool, seed string) (string, error) {
		buf := seed
		resultCh := make(chan readResult, 1)
		go func() {
			chunk := make([]byte, 4096)
			for {
				n, err := stdout.Read(chunk)
				if n > 0 {
					piece := reNullRedirect.ReplaceAllString(string(chunk[:n]), "")
					buf += piece
					if predicate(buf) {
						resultCh <- readResult{buf: buf}
						return
					}
				}
				if err != nil {
					resultCh <- readResult{buf: buf, err: err}
					return
				}
			}
		}()

		select {
		case res := <-resultCh:
			return res.buf, res.err
		case <-deadline.C:
			return buf, newError(ConnectTimedOut, "init handshake did not complete within %s", ConnectTimeout)
		}
	}

	// Phase 1: wait for the shell's own startup prompt.
	_, err := readUntil(HasPrompt, "")
	if err != nil {
		return err
	}

	// Phase 2: reconfigure PS1 to the bracket form and wait for it.
	if _, err := s.stdin.Write([]byte("export PS1='[\\u@\\h \\W]\\$ '\n")); err != nil {
		return newError(TransportAuthFailed, "failed to write handshake command: %v", err)
	}
	buf2, err := readUntil(HasBracketPrompt, "")
	if err != nil {
		return err
	}

	// Let the terminal settle before the permanent demux takes over.
	time.Sleep(HandshakeSettle)

	s.ready = true

	// Seed the replay buffer with exactly one clean prompt entry, so an
	// observer attaching immediately sees a prompt rather than the whole
	// handshake transcript.
	prompt := LastBracketPrompt(buf2)
	if prompt != "" {
		cleaned := sanitizeStep1(prompt)
		cleaned = strings.TrimRight(cleaned, "\r")
		s.replayBuffer.Append(OutputEntry{
			TimestampMs:    nowMs(),
			NormalizedText: cleaned,
			RawText:        prompt,
			Stream:         StreamStdout,
			Source:         SourceSystem,
		})
	}

	return nil
}

// pumpPty reads continuously from one PTY stream and forwards each chunk to
// the actor's inbox, until the stream ends.
func (s *ShellSession) pumpPty(r io.Reader, stream Stream) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.inbox <- ptyBytesMsg{stream: stream, data: data}:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// run is the session's single-owner actor loop.
func (s *ShellSession) run() {
	for {
		select {
		case msg := <-s.inbox:
			switch m := msg.(type) {
			case execMsg:
				s.handleExec(m)
			case inputMsg:
				s.handleInput(m)
			case signalMsg:
				s.handleSignal(m)
			case resizeMsg:
				s.handleResize(m)
			case ptyBytesMsg:
				s.handlePtyBytes(m)
			case timeoutMsg:
				s.handleTimeout(m)
			case closeMsg:
				s.handleClose(m)
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *ShellSession) handleExec(m execMsg) {
	if !s.ready {
		m.reply <- commandResult{err: newError(SessionNotReady, "session '%s' is not ready", s.name)}
		return
	}
	if err := ValidateCommandText(m.commandText); err != nil {
		m.reply <- commandResult{err: err}
		return
	}
	if err := ValidateSource(m.options.Source); err != nil {
		m.reply <- commandResult{err: err}
		return
	}

	source := m.options.Source
	if source == "" {
		source = SourceProgramClient
	}
	timeoutMs := m.options.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = DefaultExecTimeout.Milliseconds()
	}

	cmd := &QueuedCommand{
		CommandText:  m.commandText,
		Options:      CommandOptions{TimeoutMs: timeoutMs, Source: source},
		EnqueuedAtMs: nowMs(),
		waiter:       m.reply,
	}
	if err := s.queue.Push(cmd); err != nil {
		m.reply <- commandResult{err: err}
		return
	}
	s.scheduleNext()
}

func (s *ShellSession) scheduleNext() {
	for _, stale := range s.queue.EvictStale(nowMs()) {
		age := nowMs() - stale.EnqueuedAtMs
		stale.waiter <- commandResult{err: newError(CommandStale, fmtAgeError(age, MaxCommandAge.Milliseconds()))}
	}

	if s.executing || s.queue.Len() == 0 {
		return
	}

	head := s.queue.Pop()
	active := &ActiveCommand{QueuedCommand: *head, StartedAtMs: nowMs()}
	s.executing = true
	s.current = active

	timeout := time.Duration(active.Options.TimeoutMs) * time.Millisecond
	timer := time.AfterFunc(timeout, func() {
		select {
		case s.inbox <- timeoutMsg{target: active}:
		case <-s.closed:
		}
	})
	active.timer = timer

	if _, err := s.stdin.Write([]byte(active.CommandText + "\n")); err != nil {
		timer.Stop()
		s.executing = false
		s.current = nil
		head.waiter <- commandResult{err: newError(SessionDisconnected, "session '%s' disconnected: %v", s.name, err)}
		return
	}
}

func (s *ShellSession) handleTimeout(m timeoutMsg) {
	if s.current != m.target || !s.executing {
		return // already completed or superseded
	}
	cmd := s.current
	cmd.waiter <- commandResult{err: newError(CommandTimedOut, "command '%s' timed out after %dms", cmd.CommandText, cmd.Options.TimeoutMs)}
	s.recordFailure(cmd)
	s.current = nil
	s.executing = false
	s.scheduleNext()
}

func (s *ShellSession) handlePtyBytes(m ptyBytesMsg) {
	raw := string(m.data)

	if m.stream == StreamStderr {
		// Accumulated into the active command's stderr side only; per the
		// design, a shell channel's stderr stream is never broadcast
		// separately from stdout.
		if s.current != nil {
			s.current.StderrAccum.WriteString(raw)
		}
		return
	}

	source := SourceSystem
	if s.current != nil {
		source = s.current.Options.Source
	}

	normalized := SanitizeOutput(raw)
	entry := OutputEntry{
		TimestampMs:    nowMs(),
		NormalizedText: normalized,
		RawText:        raw,
		Stream:         StreamStdout,
		Source:         source,
	}
	s.observers.Broadcast(entry)
	if !strings.Contains(raw, "null 2>&1") {
		s.replayBuffer.Append(entry)
	}

	if s.current != nil {
		s.current.StdoutAccum.WriteString(raw)
		if HasPrompt(s.current.StdoutAccum.String()) {
			s.completeCurrent()
		}
	}
}

func (s *ShellSession) completeCurrent() {
	cmd := s.current
	if cmd.timer != nil {
		cmd.timer.Stop()
	}

	stdout := postProcessOutput(cmd.StdoutAccum.String(), cmd.CommandText)
	duration := nowMs() - cmd.StartedAtMs

	rec := CommandRecord{
		CommandText:  cmd.CommandText,
		EnqueuedAtMs: cmd.EnqueuedAtMs,
		StartedAtMs:  cmd.StartedAtMs,
		DurationMs:   duration,
		ExitCode:     0,
		Status:       "success",
		SessionName:  s.name,
		Source:       cmd.Options.Source,
	}
	s.history.Record(rec)
	if s.audit != nil {
		s.audit.CommandEvent(rec)
	}

	cmd.waiter <- commandResult{result: ExecResult{Stdout: stdout, Stderr: "", ExitCode: 0}}

	s.current = nil
	s.executing = false
	s.scheduleNext()
}

func (s *ShellSession) recordFailure(cmd *ActiveCommand) {
	duration := nowMs() - cmd.StartedAtMs
	rec := CommandRecord{
		CommandText:  cmd.CommandText,
		EnqueuedAtMs: cmd.EnqueuedAtMs,
		StartedAtMs:  cmd.StartedAtMs,
		DurationMs:   duration,
		ExitCode:     0,
		Status:       "failure",
		SessionName:  s.name,
		Source:       cmd.Options.Source,
	}
	s.history.Record(rec)
	if s.audit != nil {
		s.audit.CommandEvent(rec)
	}
}

func (s *ShellSession) handleInput(m inputMsg) {
	if !s.ready {
		m.reply <- newError(SessionNotReady, "session '%s' is not ready", s.name)
		return
	}
	if _, err := s.stdin.Write(m.data); err != nil {
		m.reply <- newError(SessionDisconnected, "session '%s' disconnected: %v", s.name, err)
		return
	}
	m.reply <- nil
}

func (s *ShellSession) handleSignal(m signalMsg) {
	if !s.ready {
		m.reply <- newError(SessionNotReady, "session '%s' is not ready", s.name)
		return
	}
	b, ok := signalBytes[m.name]
	if !ok {
		m.reply <- newError(UnsupportedSignal, "unsupported signal '%s'", m.name)
		return
	}
	if _, err := s.stdin.Write([]byte{b}); err != nil {
		m.reply <- newError(SessionDisconnected, "session '%s' disconnected: %v", s.name, err)
		return
	}
	m.reply <- nil
}

func (s *ShellSession) handleResize(m resizeMsg) {
	if !s.ready {
		m.reply <- newError(SessionNotReady, "session '%s' is not ready", s.name)
		return
	}
	if m.cols < 1 || m.cols > 1000 || m.rows < 1 || m.rows > 1000 {
		m.reply <- newError(InvalidDimensions, "dimensions must be within [1,1000]")
		return
	}
	if err := s.sess.WindowChange(m.rows, m.cols); err != nil {
		m.reply <- newError(ResizeFailed, "failed to resize session '%s': %v", s.name, err)
		return
	}
	m.reply <- nil
}

func (s *ShellSession) handleClose(m closeMsg) {
	s.ready = false

	reasonErr := newError(SessionDisconnected, "session '%s' disconnected: %s", s.name, m.reason)
	for _, cmd := range s.queue.DrainAll() {
		cmd.waiter <- commandResult{err: reasonErr}
	}
	if s.current != nil {
		if s.current.timer != nil {
			s.current.timer.Stop()
		}
		s.current.waiter <- commandResult{err: reasonErr}
		s.current = nil
		s.executing = false
	}

	closedEntry := OutputEntry{
		TimestampMs:    nowMs(),
		NormalizedText: fmt.Sprintf("Connection to %s closed\r\n", s.host),
		RawText:        fmt.Sprintf("Connection to %s closed", s.host),
		Stream:         StreamStdout,
		Source:         SourceSystem,
	}
	s.observers.Broadcast(closedEntry)
	s.replayBuffer.Append(closedEntry)
	s.observers.CloseAll()

	s.sess.Close()
	s.client.Close()

	if s.audit != nil {
		s.audit.SessionEvent(s.name, "disconnected", m.reason)
	}

	m.reply <- struct{}{}
}

// --- external API, used by SessionRegistry ---

// Name returns the session's immutable name.
func (s *ShellSession) Name() string { return s.name }

// Exec enqueues a command and blocks until it completes, is rejected, times
// out, or the session is disconnected.
func (s *ShellSession) Exec(commandText string, opts CommandOptions) (ExecResult, error) {
	reply := make(chan commandResult, 1)
	select {
	case <-s.closed:
		return ExecResult{}, newError(SessionNotFound, "session '%s' disconnected", s.name)
	default:
	}
	select {
	case s.inbox <- execMsg{commandText: commandText, options: opts, reply: reply}:
	case <-s.closed:
		return ExecResult{}, newError(SessionNotFound, "session '%s' disconnected", s.name)
	}
	res := <-reply
	return res.result, res.err
}

// SendInput forwards bytes unchanged to the PTY.
func (s *ShellSession) SendInput(data []byte) error {
	return s.send(inputMsg{data: data, reply: make(chan error, 1)})
}

// SendRawInput forwards bytes unchanged, for character-at-a-time observer
// input. Functionally identical to SendInput — the PTY is already
// initialized with the correct echo settings, so there is no separate raw
// mode to enter.
func (s *ShellSession) SendRawInput(data []byte) error {
	return s.SendInput(data)
}

func (s *ShellSession) send(m inputMsg) error {
	select {
	case s.inbox <- m:
	case <-s.closed:
		return newError(SessionNotReady, "session '%s' disconnected", s.name)
	}
	return <-m.reply
}

// SendSignal maps a signal name to its control byte and writes it to the
// PTY.
func (s *ShellSession) SendSignal(name string) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- signalMsg{name: name, reply: reply}:
	case <-s.closed:
		return newError(SessionNotReady, "session '%s' disconnected", s.name)
	}
	return <-reply
}

// Resize forwards a window-change request to the PTY.
func (s *ShellSession) Resize(cols, rows int) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- resizeMsg{cols: cols, rows: rows, reply: reply}:
	case <-s.closed:
		return newError(SessionNotReady, "session '%s' disconnected", s.name)
	}
	return <-reply
}

// Subscribe registers a new observer for this session's live output.
func (s *ShellSession) Subscribe() *Observer { return s.observers.Subscribe() }

// Unsubscribe removes an observer by handle.
func (s *ShellSession) Unsubscribe(id string) { s.observers.Unsubscribe(id) }

// SubscribeHistory registers a new live subscriber for completed commands.
func (s *ShellSession) SubscribeHistory(id string) chan CommandRecord { return s.history.Subscribe(id) }

// UnsubscribeHistory removes a history subscriber by handle.
func (s *ShellSession) UnsubscribeHistory(id string) { s.history.Unsubscribe(id) }

// Snapshot returns a copy of the replay buffer.
func (s *ShellSession) Snapshot() []OutputEntry { return s.replayBuffer.Snapshot() }

// History returns a copy of the recorded command history.
func (s *ShellSession) History() []CommandRecord { return s.history.Snapshot() }

// Disconnect tears the session down: every pending waiter is failed, the
// transport is destroyed, and observers are closed. Safe to call more than
// once.
func (s *ShellSession) Disconnect(reason string) {
	s.once.Do(func() {
		reply := make(chan struct{})
		s.inbox <- closeMsg{reason: reason, reply: reply}
		<-reply
		close(s.closed)
	})
}
