package termclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// stateRecorder collects the state transitions a client goes through.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State, _ error) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) has(want State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func (r *stateRecorder) waitFor(t *testing.T, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.has(want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("state %s never reached; saw %v", want, r.states)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient_CleanCloseEndsRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsjson.Write(r.Context(), conn, term.ConnectedMessage("s1", "/workspace", "workspace"))
		conn.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer ts.Close()

	rec := &stateRecorder{}
	c := New(Config{URL: wsURL(ts), OnState: rec.record})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rec.has(StateConnected) {
		t.Error("client never reached connected state")
	}
	if c.SessionID() != "s1" {
		t.Errorf("session id = %q, want s1", c.SessionID())
	}
	if c.State() != StateDisconnected {
		t.Errorf("final state = %s, want disconnected", c.State())
	}
}

func TestClient_ReconnectsWithBackoffAfterUncleanClose(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsjson.Write(r.Context(), conn, term.ConnectedMessage("abc", "/workspace", "workspace"))
		if n == 1 {
			conn.CloseNow() // unclean
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer ts.Close()

	rec := &stateRecorder{}
	c := New(Config{
		URL:            wsURL(ts),
		SessionID:      "abc",
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		OnState:        rec.record,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := conns.Load(); got != 2 {
		t.Errorf("expected 2 connections (initial + reconnect), got %d", got)
	}
	if !rec.has(StateBackingOff) {
		t.Error("client never entered backing-off state")
	}
	if c.SessionID() != "abc" {
		t.Errorf("session id changed across reconnect: %q", c.SessionID())
	}
}

func TestClient_AttemptBudgetResetsPerConnection(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsjson.Write(r.Context(), conn, term.ConnectedMessage("abc", "/workspace", "workspace"))
		if n <= 5 {
			time.Sleep(10 * time.Millisecond)
			conn.CloseNow() // unclean
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer ts.Close()

	rec := &stateRecorder{}
	c := New(Config{
		URL:            wsURL(ts),
		SessionID:      "abc",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxAttempts:    3,
		OnState:        rec.record,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Five drops exceed MaxAttempts, but each one followed an established
	// connection, so the failure streak never grows past one.
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := conns.Load(); got != 6 {
		t.Errorf("expected 6 connections, got %d", got)
	}
	if rec.has(StateFailed) {
		t.Error("client gave up despite every attempt connecting")
	}
}

func TestClient_ReplacedCloseStopsReconnecting(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsjson.Write(r.Context(), conn, term.ConnectedMessage("abc", "/workspace", "workspace"))
		conn.Close(websocket.StatusCode(term.CloseReplaced), "session attached elsewhere")
	}))
	defer ts.Close()

	rec := &stateRecorder{}
	c := New(Config{
		URL:            wsURL(ts),
		SessionID:      "abc",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		OnState:        rec.record,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	if !errors.Is(err, ErrReplaced) {
		t.Fatalf("Run returned %v, want ErrReplaced", err)
	}

	// The newer connection owns the session now; dialing again would only
	// bounce it off in turn.
	if got := conns.Load(); got != 1 {
		t.Errorf("expected a single connection, got %d", got)
	}
	if rec.has(StateBackingOff) {
		t.Error("client tried to reconnect after being replaced")
	}
	if c.State() != StateDisconnected {
		t.Errorf("final state = %s, want disconnected", c.State())
	}
}

func TestClient_FailsAfterMaxAttemptsThenRetryResumes(t *testing.T) {
	var healthy atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		wsjson.Write(r.Context(), conn, term.ConnectedMessage("s", "/w", "w"))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer ts.Close()

	rec := &stateRecorder{}
	c := New(Config{
		URL:            wsURL(ts),
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxAttempts:    3,
		OnState:        rec.record,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, StateFailed, 5*time.Second)

	// No automatic attempts happen while failed; a manual retry against a
	// healthy server succeeds and ends with a clean close.
	healthy.Store(true)
	c.Retry()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after retry: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish after retry")
	}
	if !rec.has(StateConnected) {
		t.Error("client never connected after manual retry")
	}
}

func TestClient_InputRequiresConnection(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws/terminal"})
	if err := c.Input(context.Background(), "ls\n"); err == nil {
		t.Error("expected error sending input while disconnected")
	}
}
