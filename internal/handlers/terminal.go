package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Registry is the process-wide session table, set from main.go during init.
var Registry *term.Registry

// Heartbeat tuning, overridden from config in main.go.
var (
	HeartbeatInterval = 30 * time.Second
	HeartbeatTimeout  = 70 * time.Second
)

// terminalRateLimit is the maximum number of messages per second per
// WebSocket connection; terminalRateBurst allows paste bursts.
const (
	terminalRateLimit = 200
	terminalRateBurst = 200
)

// maxInputMessage caps a single inbound frame's payload.
const maxInputMessage = 64 * 1024

// wsTransport adapts a coder/websocket connection to term.Transport.
// Writes are serialized; lastRecv feeds the heartbeat staleness check.
type wsTransport struct {
	conn     *websocket.Conn
	ctx      context.Context
	mu       sync.Mutex
	lastRecv atomic.Int64 // unix nano
}

func (t *wsTransport) Send(msg term.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, t.conn, msg)
}

func (t *wsTransport) Close(code int, reason string) {
	t.conn.Close(websocket.StatusCode(code), reason)
}

func (t *wsTransport) touch() {
	t.lastRecv.Store(time.Now().UnixNano())
}

func (t *wsTransport) sinceLastRecv() time.Duration {
	return time.Since(time.Unix(0, t.lastRecv.Load()))
}

// TerminalWS handles the terminal bridge WebSocket.
//
// Query parameters:
//   - sessionId: attach to an existing session, or name a new one. When
//     omitted the server generates an id (echoed in the connected message).
//   - cwd: requested working directory, resolved against workspace roots.
//   - persistent: "false" opts into the short idle budget; default true.
//
// A connection presenting a live session id replaces any previously
// attached connection without touching the shell. Disconnects (any close
// code) demote the session to detached; only explicit destroy or the idle
// sweep kill the shell.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		http.Error(w, "Terminal registry not initialized", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	cwd := r.URL.Query().Get("cwd")
	persistent := r.URL.Query().Get("persistent") != "false"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("Failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1024 * 1024)

	ctx := r.Context()

	var s *term.Session
	if sessionID != "" {
		s = Registry.Get(sessionID)
		if s != nil && s.State() == term.StateExited {
			// The shell is gone; attaching would only yield errors. Clear
			// the entry out of its removal grace and start fresh.
			Registry.Destroy(sessionID)
			s = nil
		}
	}
	if s == nil {
		s, err = Registry.Create(sessionID, cwd, persistent, 80, 24)
		if errors.Is(err, term.ErrSessionExists) {
			// Raced with another connection creating the same id; attach to it.
			s = Registry.Get(sessionID)
			err = nil
		}
		if errors.Is(err, term.ErrSessionLimit) {
			wsjson.Write(ctx, conn, term.ErrorMessage("maximum number of sessions reached"))
			conn.Close(term.CloseSessionLimit, "session limit")
			return
		}
		if err != nil || s == nil {
			log.Printf("Terminal session creation failed (id=%q): %v", sessionID, err)
			wsjson.Write(ctx, conn, term.ErrorMessage("failed to start shell"))
			conn.Close(term.CloseSpawnFailed, "failed to start shell")
			return
		}
		log.Printf("Terminal session created: session=%s cwd=%s", s.ID, s.WorkingDir())
	} else {
		log.Printf("Terminal session reconnected: session=%s", s.ID)
	}

	tr := &wsTransport{conn: conn, ctx: ctx}
	tr.touch()

	if prev := s.Attach(tr); prev != nil {
		prev.Close(term.CloseReplaced, "session attached elsewhere")
	}
	defer func() {
		if s.Detach(tr) {
			log.Printf("Terminal session detached: session=%s", s.ID)
		}
	}()

	if err := tr.Send(term.ConnectedMessage(s.ID, s.WorkingDir(), s.Title())); err != nil {
		return
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go heartbeat(hbCtx, tr, s)

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)
	readLoop(ctx, conn, tr, s, limiter)

	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop pumps client messages into the session until the connection
// drops. Malformed messages are reported and skipped; they never kill the
// transport.
func readLoop(ctx context.Context, conn *websocket.Conn, tr *wsTransport, s *term.Session, limiter *tokenBucket) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		tr.touch()
		s.Touch()

		if !limiter.allow() {
			continue
		}
		if len(data) > maxInputMessage {
			tr.Send(term.ErrorMessage("message too large"))
			continue
		}

		msg, err := term.DecodeClientMessage(data)
		if err != nil {
			log.Printf("Terminal session %s: %v", s.ID, err)
			tr.Send(term.ErrorMessage(err.Error()))
			continue
		}

		switch msg.Type {
		case term.MsgInput:
			if err := s.Write([]byte(msg.Data)); err != nil {
				log.Printf("Terminal session %s: input dropped: %v", s.ID, err)
				tr.Send(term.ErrorMessage("shell is not running"))
			}
		case term.MsgResize:
			s.Resize(msg.Cols, msg.Rows)
		case term.MsgPing:
			tr.Send(term.PongMessage())
		case term.MsgTitle:
			s.SetTitle(msg.Data)
		case term.MsgCwd:
			dir := Registry.Resolver().Resolve(msg.Data)
			if err := s.ChangeDir(dir); err != nil {
				log.Printf("Terminal session %s: cwd change failed: %v", s.ID, err)
				tr.Send(term.ErrorMessage("could not change directory"))
			}
		}
	}
}

// heartbeat closes the transport when no client traffic (input or ping
// messages) arrives within HeartbeatTimeout. The client pings on its own
// schedule; a healthy but idle connection stays alive on pings alone.
// Closure demotes the session to detached; it is never destroyed here.
func heartbeat(ctx context.Context, tr *wsTransport, s *term.Session) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tr.sinceLastRecv() > HeartbeatTimeout {
				log.Printf("Terminal session %s: heartbeat timeout, closing transport", s.ID)
				tr.Close(term.CloseHeartbeatTimeout, "heartbeat timeout")
				return
			}
		}
	}
}

// tokenBucket rate limits terminal messages per connection.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(burst, rate int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(rate),
		lastRefill: time.Now(),
	}
}

// allow checks if a message is permitted and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
