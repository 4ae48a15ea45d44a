package term

import (
	"errors"
	"log"
	"sync"
	"time"
)

// State is the lifecycle state of a Session.
type State string

const (
	// StateSpawning means the shell process is being created.
	StateSpawning State = "spawning"
	// StateAttached means the process is running and a transport is connected.
	StateAttached State = "attached"
	// StateDetached means the process is running with no transport; the
	// session waits for a reconnect or the idle sweep.
	StateDetached State = "detached"
	// StateExited means the shell ended on its own.
	StateExited State = "exited"
	// StateDestroyed means the session was torn down explicitly or by the
	// idle sweep.
	StateDestroyed State = "destroyed"
)

// Transport is one client connection attached to a session. At most one
// transport is attached at a time; a session outlives any transport.
type Transport interface {
	// Send delivers one protocol message. Errors mean the connection is
	// dead; the session drops them and lets the heartbeat reap the transport.
	Send(Message) error
	// Close closes the connection with a WebSocket-style status code.
	Close(code int, reason string)
}

// Session pairs one shell process with a stable identifier, independent of
// any particular connection.
//
// Lifecycle: spawning → attached ⇄ detached → exited/destroyed. Destruction
// is idempotent; the exit notification is delivered exactly once via the
// supervisor's pump.
type Session struct {
	ID         string
	Persistent bool
	CreatedAt  time.Time

	registry *Registry
	proc     *Proc

	mu           sync.Mutex
	state        State
	transport    Transport
	workingDir   string
	title        string
	lastActivity time.Time
}

// SessionInfo is a snapshot of session metadata for the control surface.
type SessionInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	WorkingDir   string    `json:"working_directory"`
	State        State     `json:"state"`
	Persistent   bool      `json:"persistent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WorkingDir returns the session's resolved working directory.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// Title returns the session's display title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// LastActivity returns the last time the session saw traffic in either
// direction.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Info returns a metadata snapshot.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:           s.ID,
		Title:        s.title,
		WorkingDir:   s.workingDir,
		State:        s.state,
		Persistent:   s.Persistent,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// Attach connects a transport, replacing (and returning) any previously
// attached one. The caller closes the previous transport; the shell process
// is untouched.
func (s *Session) Attach(t Transport) (prev Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.transport
	s.transport = t
	if s.state == StateSpawning || s.state == StateDetached || s.state == StateAttached {
		s.state = StateAttached
	}
	s.lastActivity = time.Now()
	return prev
}

// Detach disconnects t if it is still the attached transport. Stale
// detaches (after a replacement attach) are no-ops, so a slow-closing old
// connection cannot detach its successor.
func (s *Session) Detach(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return false
	}
	s.transport = nil
	if s.state == StateAttached {
		s.state = StateDetached
	}
	s.lastActivity = time.Now()
	return true
}

// Attached reports whether a transport is currently connected.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// Write sends input bytes to the shell in the order received.
func (s *Session) Write(data []byte) error {
	p := s.process()
	if p == nil {
		return errors.New("session has no process")
	}
	s.Touch()
	return p.Write(data)
}

// Resize forwards a bounds-checked resize to the PTY.
func (s *Session) Resize(cols, rows int) {
	p := s.process()
	if p == nil {
		return
	}
	s.Touch()
	p.Resize(cols, rows)
}

// process returns the supervisor handle, nil while still spawning.
func (s *Session) process() *Proc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// finishSpawn installs the freshly spawned process. If the session was
// destroyed while the spawn was in flight, the destroy found no process to
// kill; the new shell is killed here instead and false is returned.
func (s *Session) finishSpawn(proc *Proc, grace time.Duration) bool {
	s.mu.Lock()
	s.proc = proc
	destroyed := s.state == StateDestroyed
	if s.state == StateSpawning {
		s.state = StateDetached
	}
	s.mu.Unlock()

	if destroyed {
		proc.Kill(grace)
		return false
	}
	return true
}

// SetTitle applies a client-asserted title override.
func (s *Session) SetTitle(title string) {
	clean := sanitizeTitle(title)
	if clean == "" {
		return
	}
	s.mu.Lock()
	s.title = clean
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// ChangeDir re-points the session at dir (already resolved by the caller)
// by injecting a cd into the shell. The process is not respawned. The
// tracked directory only moves once the shell actually received the cd.
func (s *Session) ChangeDir(dir string) error {
	if err := s.Write([]byte("cd " + shellQuote(dir) + "\n")); err != nil {
		return err
	}
	s.mu.Lock()
	s.workingDir = dir
	s.mu.Unlock()
	return nil
}

// Destroy tears the session down: kills the shell (graceful, then forceful)
// and closes any attached transport. Safe to call repeatedly; only the first
// call does anything.
func (s *Session) Destroy(grace time.Duration) bool {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return false
	}
	s.state = StateDestroyed
	t := s.transport
	s.transport = nil
	p := s.proc
	s.mu.Unlock()

	if t != nil {
		t.Close(CloseSessionDestroyed, "session destroyed")
	}
	if p != nil {
		p.Kill(grace)
	}
	return true
}

// Done is closed when the underlying shell process has been reaped. While
// the process is still spawning it returns a channel that never closes.
func (s *Session) Done() <-chan struct{} {
	p := s.process()
	if p == nil {
		return nil
	}
	return p.Done()
}

// handleOutput forwards a PTY chunk to the attached transport and tracks
// OSC title changes. Runs on the supervisor's pump goroutine.
func (s *Session) handleOutput(chunk []byte) {
	s.mu.Lock()
	if title := parseOSCTitle(chunk); title != "" {
		s.title = title
	}
	s.lastActivity = time.Now()
	t := s.transport
	s.mu.Unlock()

	if t != nil {
		if err := t.Send(OutputMessage(chunk)); err != nil {
			// Dead connection; heartbeat will close it and detach.
			log.Printf("[term] session %s: dropping output, transport send failed: %v", s.ID, err)
		}
	}
}

// handleExit records the shell's own termination and notifies the client.
func (s *Session) handleExit(st ExitStatus) {
	s.mu.Lock()
	if s.state != StateDestroyed {
		s.state = StateExited
	}
	s.lastActivity = time.Now()
	t := s.transport
	s.mu.Unlock()

	log.Printf("[term] session %s: shell exited (code=%d signal=%q)", s.ID, st.Code, st.Signal)
	if t != nil {
		t.Send(ExitMessage(st))
	}
	s.registry.scheduleRemove(s)
}
