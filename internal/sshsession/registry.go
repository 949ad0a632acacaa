package sshsession

import "sync"

// SessionRegistry is the process-wide mapping from session name to
// ShellSession. Its mutations (create, disconnect, cleanup) are serialized
// by a mutex — it is the only structure shared across sessions; each
// ShellSession's own state is owned by that session's actor goroutine.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*ShellSession
	keyLoad  *KeyMaterialLoader
	audit    AuditSink
}

// NewSessionRegistry creates an empty registry. It is not a singleton:
// callers hold and pass the handle explicitly.
func NewSessionRegistry(audit AuditSink) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ShellSession),
		keyLoad:  NewKeyMaterialLoader(),
		audit:    audit,
	}
}

// Create validates cfg.Name, enforces uniqueness, dials the transport and
// runs the init handshake. On any failure nothing is registered.
func (r *SessionRegistry) Create(cfg SessionConfig) (*ShellSession, error) {
	if err := SessionName(cfg.Name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.sessions[cfg.Name]; exists {
		r.mu.Unlock()
		return nil, newError(NameTaken, "session '%s' already exists", cfg.Name)
	}
	// Reserve the name for the duration of the dial so two concurrent
	// creates for the same name cannot both proceed.
	r.sessions[cfg.Name] = nil
	r.mu.Unlock()

	session, err := Connect(cfg, r.keyLoad, r.audit)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, cfg.Name)
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[cfg.Name] = session
	r.mu.Unlock()

	return session, nil
}

// Has reports whether name is currently registered and connected.
func (r *SessionRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	return ok && s != nil
}

// Get returns the session registered under name, or SessionNotFound.
func (r *SessionRegistry) Get(name string) (*ShellSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	if !ok || s == nil {
		return nil, newError(SessionNotFound, "session '%s' not found", name)
	}
	return s, nil
}

// List returns the names of every registered session.
func (r *SessionRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name, s := range r.sessions {
		if s != nil {
			names = append(names, name)
		}
	}
	return names
}

// Disconnect tears the named session down and removes it from the registry.
// A late call referencing an already-removed name is a no-op.
func (r *SessionRegistry) Disconnect(name string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	if ok && s != nil {
		s.Disconnect("requested by caller")
	}
}

// ExecCommand is the canonical external entry point for running a command
// on a named session. Source validation runs before the session lookup —
// this is security-relevant and must not be reorderable, per the design.
func (r *SessionRegistry) ExecCommand(name, commandText string, opts CommandOptions) (ExecResult, error) {
	if err := ValidateSource(opts.Source); err != nil {
		return ExecResult{}, err
	}
	session, err := r.Get(name)
	if err != nil {
		return ExecResult{}, err
	}
	return session.Exec(commandText, opts)
}

// Cleanup disconnects every registered session, used on process shutdown.
func (r *SessionRegistry) Cleanup() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*ShellSession)
	r.mu.Unlock()

	for _, s := range sessions {
		if s != nil {
			s.Disconnect("registry shutdown")
		}
	}
}
