package term

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/workspace"
)

// fakeTransport captures protocol messages for assertions.
type fakeTransport struct {
	mu        sync.Mutex
	msgs      []Message
	closed    bool
	closeCode int
}

func (f *fakeTransport) Send(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
}

func (f *fakeTransport) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sb strings.Builder
	for _, m := range f.msgs {
		if m.Type == MsgOutput {
			sb.WriteString(m.Data)
		}
	}
	return sb.String()
}

func (f *fakeTransport) wasClosed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

func (f *fakeTransport) waitForOutput(t *testing.T, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(f.output(), substr) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in transport output:\n%s", substr, f.output())
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	resolver, err := workspace.NewResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	reg := NewRegistry(resolver, opts)
	t.Cleanup(reg.Shutdown)
	return reg
}

func TestRegistry_CreateWriteOutput(t *testing.T) {
	reg := newTestRegistry(t, Options{})

	s, err := reg.Create("", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected generated session id")
	}
	if s.State() != StateDetached {
		t.Errorf("fresh session state = %s, want detached", s.State())
	}
	if s.WorkingDir() != reg.Resolver().DefaultRoot() {
		t.Errorf("working dir = %q, want default root", s.WorkingDir())
	}

	tr := &fakeTransport{}
	if prev := s.Attach(tr); prev != nil {
		t.Errorf("unexpected previous transport on first attach")
	}
	if s.State() != StateAttached {
		t.Errorf("state after attach = %s, want attached", s.State())
	}

	if err := s.Write([]byte("echo from-registry-test\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tr.waitForOutput(t, "from-registry-test", 5*time.Second)
}

func TestRegistry_SecondAttachReplacesFirst(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	s, err := reg.Create("abc", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t1 := &fakeTransport{}
	t2 := &fakeTransport{}
	s.Attach(t1)

	prev := s.Attach(t2)
	if prev != t1 {
		t.Fatalf("expected t1 returned as previous transport")
	}
	// The shell must survive the replacement.
	if s.proc.Exited() {
		t.Error("process died on transport replacement")
	}
	if s.State() != StateAttached {
		t.Errorf("state = %s, want attached", s.State())
	}

	// A stale detach from the replaced transport must not detach t2.
	if s.Detach(t1) {
		t.Error("stale detach succeeded")
	}
	if s.State() != StateAttached {
		t.Errorf("state after stale detach = %s, want attached", s.State())
	}

	if !s.Detach(t2) {
		t.Error("current transport detach failed")
	}
	if s.State() != StateDetached {
		t.Errorf("state after detach = %s, want detached", s.State())
	}
}

func TestRegistry_DestroyIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t, Options{KillGrace: time.Second})
	s, err := reg.Create("doomed", "", false, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !reg.Destroy("doomed") {
		t.Fatal("first destroy reported missing session")
	}
	if reg.Destroy("doomed") {
		t.Error("second destroy should be a no-op")
	}
	if s.Destroy(time.Second) {
		t.Error("direct re-destroy should be a no-op")
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not reaped after destroy")
	}
	if reg.Get("doomed") != nil {
		t.Error("destroyed session still in table")
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	if _, err := reg.Create("dup", "", true, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reg.Create("dup", "", true, 80, 24); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestRegistry_SessionLimit(t *testing.T) {
	reg := newTestRegistry(t, Options{MaxSessions: 1})
	if _, err := reg.Create("one", "", true, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reg.Create("two", "", true, 80, 24); !errors.Is(err, ErrSessionLimit) {
		t.Errorf("expected ErrSessionLimit, got %v", err)
	}
	// Destroying frees the slot.
	reg.Destroy("one")
	if _, err := reg.Create("two", "", true, 80, 24); err != nil {
		t.Errorf("Create after destroy: %v", err)
	}
}

func TestRegistry_SpawnFailureNotRegistered(t *testing.T) {
	reg := newTestRegistry(t, Options{Shell: "/nonexistent/shell"})
	if _, err := reg.Create("nope", "", true, 80, 24); err == nil {
		t.Fatal("expected spawn failure")
	}
	if reg.Count() != 0 {
		t.Errorf("failed spawn left %d session(s) in table", reg.Count())
	}
}

func TestRegistry_SweepBudgets(t *testing.T) {
	reg := newTestRegistry(t, Options{
		EphemeralIdle:  50 * time.Millisecond,
		PersistentIdle: time.Hour,
		KillGrace:      time.Second,
	})

	eph, err := reg.Create("ephemeral", "", false, 80, 24)
	if err != nil {
		t.Fatalf("Create ephemeral: %v", err)
	}
	per, err := reg.Create("persistent", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create persistent: %v", err)
	}
	_ = eph

	time.Sleep(120 * time.Millisecond)

	if n := reg.Sweep(); n != 1 {
		t.Errorf("Sweep destroyed %d sessions, want 1", n)
	}
	if reg.Get("ephemeral") != nil {
		t.Error("idle ephemeral session survived sweep")
	}
	if reg.Get("persistent") == nil {
		t.Error("persistent session inside its budget was destroyed")
	}
	if per.State() == StateDestroyed {
		t.Error("persistent session marked destroyed")
	}
}

func TestSession_ExitRemovedAfterGrace(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	s, err := reg.Create("short", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tr := &fakeTransport{}
	s.Attach(tr)

	if err := s.Write([]byte("exit 0\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit")
	}

	// The attached transport gets the exit notification.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tr.mu.Lock()
		var sawExit bool
		for _, m := range tr.msgs {
			if m.Type == MsgExit {
				sawExit = true
			}
		}
		tr.mu.Unlock()
		if sawExit {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if s.State() != StateExited {
		t.Errorf("state = %s, want exited", s.State())
	}
}

func TestSession_ChangeDirInjectsCd(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	s, err := reg.Create("cwd", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tr := &fakeTransport{}
	s.Attach(tr)

	target := reg.Resolver().DefaultRoot()
	if err := s.ChangeDir(target); err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}
	if s.WorkingDir() != target {
		t.Errorf("working dir = %q, want %q", s.WorkingDir(), target)
	}
	// The cd is echoed back by the PTY.
	tr.waitForOutput(t, "cd ", 5*time.Second)
	// The process was not respawned.
	if s.proc.Exited() {
		t.Error("process died on cwd change")
	}
}

func TestRegistry_DestroyDuringSpawnReapsShell(t *testing.T) {
	reg := newTestRegistry(t, Options{})

	// Reserve the id the way Create does, leaving the spawn in flight.
	s := &Session{
		ID:           "ghost",
		Persistent:   true,
		CreatedAt:    time.Now(),
		registry:     reg,
		state:        StateSpawning,
		workingDir:   reg.Resolver().DefaultRoot(),
		lastActivity: time.Now(),
	}
	reg.mu.Lock()
	reg.sessions["ghost"] = s
	reg.mu.Unlock()

	// Destroy lands while no process exists yet; there is nothing to kill.
	if !reg.Destroy("ghost") {
		t.Fatal("Destroy did not find the reserved session")
	}
	if s.State() != StateDestroyed {
		t.Fatalf("state = %s, want destroyed", s.State())
	}

	proc, err := StartProc(reg.Resolver().DefaultRoot(), "/bin/sh", 80, 24, s.handleOutput, s.handleExit)
	if err != nil {
		t.Fatalf("StartProc: %v", err)
	}
	if s.finishSpawn(proc, time.Second) {
		t.Fatal("finishSpawn adopted a process into a destroyed session")
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell of the destroyed session was left running")
	}
}

func TestSession_ChangeDirAfterExitKeepsWorkingDir(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	s, err := reg.Create("", "", true, 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	orig := s.WorkingDir()

	if err := s.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit")
	}

	if err := s.ChangeDir("/tmp"); err == nil {
		t.Fatal("expected error changing directory of an exited session")
	}
	if got := s.WorkingDir(); got != orig {
		t.Errorf("working dir moved to %q after a failed cd, want %q", got, orig)
	}
}
