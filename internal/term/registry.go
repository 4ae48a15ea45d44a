package term

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/workspace"
	"github.com/google/uuid"
)

// Registry errors.
var (
	ErrSessionExists = errors.New("session id already in use")
	ErrSessionLimit  = errors.New("maximum number of sessions reached")
)

// exitRemoveGrace is how long an exited session stays listed after its exit
// notification, so a connected client can observe the exit before the entry
// disappears.
const exitRemoveGrace = 5 * time.Second

// Options configures a Registry.
type Options struct {
	// MaxSessions caps concurrent sessions. Zero means 32.
	MaxSessions int
	// KillGrace is the SIGTERM→SIGKILL window for destroyed sessions.
	KillGrace time.Duration
	// PersistentIdle is the idle budget for persistent (page-reload
	// surviving) sessions; EphemeralIdle for the rest.
	PersistentIdle time.Duration
	EphemeralIdle  time.Duration
	// Shell overrides shell selection, mainly for tests.
	Shell string
}

func (o *Options) fillDefaults() {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 32
	}
	if o.KillGrace <= 0 {
		o.KillGrace = 3 * time.Second
	}
	if o.PersistentIdle <= 0 {
		o.PersistentIdle = 12 * time.Hour
	}
	if o.EphemeralIdle <= 0 {
		o.EphemeralIdle = 5 * time.Minute
	}
}

// Registry is the process-wide session table. All mutation goes through
// atomic per-id operations so the transport layer, the idle sweep, and
// process-exit callbacks can race safely.
type Registry struct {
	resolver *workspace.Resolver
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session table.
func NewRegistry(resolver *workspace.Resolver, opts Options) *Registry {
	opts.fillDefaults()
	return &Registry{
		resolver: resolver,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create spawns a shell and inserts a new session. id may be empty (one is
// generated). cwd is resolved against the workspace roots, falling back to
// the default root. On spawn failure the session is not registered.
func (r *Registry) Create(id, cwd string, persistent bool, cols, rows uint16) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	dir := r.resolver.Resolve(cwd)

	s := &Session{
		ID:           id,
		Persistent:   persistent,
		CreatedAt:    time.Now(),
		registry:     r,
		state:        StateSpawning,
		workingDir:   dir,
		title:        filepath.Base(dir),
		lastActivity: time.Now(),
	}

	// Reserve the id before spawning so two racing connections with the
	// same fresh id cannot both spawn a shell.
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	if len(r.sessions) >= r.opts.MaxSessions {
		r.mu.Unlock()
		return nil, ErrSessionLimit
	}
	r.sessions[id] = s
	r.mu.Unlock()

	proc, err := StartProc(dir, r.opts.Shell, cols, rows, s.handleOutput, s.handleExit)
	if err != nil {
		r.removeIfMatch(id, s)
		return nil, err
	}

	// A Destroy racing the spawn finds no process to kill; finishSpawn
	// detects that and reaps the fresh shell instead of leaking it.
	if !s.finishSpawn(proc, r.opts.KillGrace) {
		return nil, fmt.Errorf("session %s destroyed while starting", id)
	}

	log.Printf("[term] session %s created (cwd=%s persistent=%v pid=%d)", id, dir, persistent, proc.Pid())
	return s, nil
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Destroy kills and removes the session for id. Destroying a missing or
// already-destroyed session is a no-op; exactly one exit notification is
// ever produced.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if s.Destroy(r.opts.KillGrace) {
		log.Printf("[term] session %s destroyed", id)
	}
	return true
}

// List returns metadata snapshots for all sessions, oldest first.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Resolver returns the workspace resolver sessions were created against.
func (r *Registry) Resolver() *workspace.Resolver { return r.resolver }

// Sweep destroys detached sessions idle past their budget and clears out
// exited entries that outlived the removal grace. Returns the number of
// sessions destroyed.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	destroyed := 0
	now := time.Now()
	for _, s := range snapshot {
		switch s.State() {
		case StateDetached:
			budget := r.opts.EphemeralIdle
			if s.Persistent {
				budget = r.opts.PersistentIdle
			}
			if now.Sub(s.LastActivity()) > budget {
				log.Printf("[term] idle sweep destroying session %s (idle since %s)",
					s.ID, s.LastActivity().Format(time.RFC3339))
				if r.Destroy(s.ID) {
					destroyed++
				}
			}
		case StateExited:
			if now.Sub(s.LastActivity()) > exitRemoveGrace {
				r.removeIfMatch(s.ID, s)
			}
		}
	}
	return destroyed
}

// Shutdown destroys every session. Used on server stop.
func (r *Registry) Shutdown() {
	for _, info := range r.List() {
		r.Destroy(info.ID)
	}
}

// scheduleRemove drops an exited session from the table after a short grace
// period, unless the id was reused in the meantime.
func (r *Registry) scheduleRemove(s *Session) {
	time.AfterFunc(exitRemoveGrace, func() {
		r.removeIfMatch(s.ID, s)
	})
}

// removeIfMatch removes id only while it still maps to s.
func (r *Registry) removeIfMatch(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
}
