// Package termclient is the Go side of the terminal bridge protocol: a
// WebSocket client that mirrors the browser's reconnect behavior and
// documents the reconnect contract the web frontend implements.
package termclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrReplaced is returned by Run when another connection attached to the
// same session. The replaced client stands down; resuming is a user action.
var ErrReplaced = errors.New("session attached elsewhere")

// State is the client connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackingOff   State = "backing-off"
	// StateFailed means the retry budget is exhausted; only Retry() resumes.
	StateFailed State = "failed"
)

// Config configures a Client.
type Config struct {
	// URL is the terminal WebSocket endpoint,
	// e.g. ws://host:8740/api/v1/terminal.
	URL string
	// SessionID to attach to; empty lets the server generate one (echoed in
	// the connected message and reused on reconnects).
	SessionID string
	// Cwd is the requested working directory hint.
	Cwd string
	// Ephemeral opts the session into the short idle budget. Sessions are
	// persistent unless asked otherwise, matching the server default.
	Ephemeral bool

	// Reconnect tuning. Zero values get defaults (1s initial, 16s cap,
	// 10 attempts), matching the frontend.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int

	// PingInterval for protocol-level pings. Zero disables them.
	PingInterval time.Duration

	// OnMessage receives every server message. Called from the read loop.
	OnMessage func(term.Message)
	// OnState is notified of every connection state change; err is non-nil
	// for backing-off and failed.
	OnState func(State, error)
}

func (c *Config) fillDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 16 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
}

// Client maintains one terminal bridge connection with automatic reconnect.
type Client struct {
	cfg Config

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	sessionID string

	retryCh chan struct{}
}

// New creates a client; call Run to connect.
func New(cfg Config) *Client {
	cfg.fillDefaults()
	return &Client{
		cfg:       cfg,
		state:     StateDisconnected,
		sessionID: cfg.SessionID,
		retryCh:   make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id in use (server-assigned once connected).
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Retry resumes connecting after the retry budget was exhausted. A no-op in
// any state but failed.
func (c *Client) Retry() {
	if c.State() != StateFailed {
		return
	}
	select {
	case c.retryCh <- struct{}{}:
	default:
	}
}

// Run connects and keeps the session attached until ctx is cancelled, the
// server closes the connection cleanly (session destroyed, shell exited),
// or another connection takes the session over (ErrReplaced). Unclean
// disconnects trigger capped exponential backoff; once MaxAttempts
// consecutive attempts fail the client parks in the failed state until
// Retry() or cancellation.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	backoff := c.cfg.InitialBackoff

	for {
		c.setState(StateConnecting, nil)
		established, err := c.connectOnce(ctx)
		if err == nil || errors.Is(err, ErrReplaced) {
			// Deliberate ending: the session is gone or belongs to a
			// newer connection now.
			c.setState(StateDisconnected, err)
			return err
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return ctx.Err()
		}

		// The retry budget bounds one reconnection episode, not the
		// session's lifetime: any established connection starts it over.
		if established {
			attempts = 0
			backoff = c.cfg.InitialBackoff
		}
		attempts++
		if attempts >= c.cfg.MaxAttempts {
			c.setState(StateFailed, fmt.Errorf("maximum reconnection attempts reached: %w", err))
			select {
			case <-c.retryCh:
				attempts = 0
				backoff = c.cfg.InitialBackoff
				continue
			case <-ctx.Done():
				c.setState(StateDisconnected, nil)
				return ctx.Err()
			}
		}

		c.setState(StateBackingOff, err)
		log.Printf("[termclient] reconnect attempt %d/%d in %s (%v)", attempts, c.cfg.MaxAttempts, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.setState(StateDisconnected, nil)
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// connectOnce dials, reads until the connection drops, and classifies the
// outcome: nil for a clean server-side close, an error for anything that
// should trigger a reconnect. established reports whether the WebSocket
// handshake succeeded, regardless of how the connection ended.
func (c *Client) connectOnce(ctx context.Context) (established bool, _ error) {
	conn, _, err := websocket.Dial(ctx, c.endpoint(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1024 * 1024)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()
	c.setState(StateConnected, nil)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.cfg.PingInterval > 0 {
		go c.pingLoop(readCtx, conn)
	}

	for {
		var msg term.Message
		if err := wsjson.Read(readCtx, conn, &msg); err != nil {
			return true, classifyClose(err)
		}

		if msg.Type == term.MsgConnected && msg.SessionID != "" {
			c.mu.Lock()
			c.sessionID = msg.SessionID
			c.mu.Unlock()
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, term.Message{Type: term.MsgPing}); err != nil {
				return
			}
		}
	}
}

// Send writes one protocol message on the current connection.
func (c *Client) Send(ctx context.Context, msg term.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return wsjson.Write(ctx, conn, msg)
}

// Input sends keystrokes to the shell.
func (c *Client) Input(ctx context.Context, data string) error {
	return c.Send(ctx, term.Message{Type: term.MsgInput, Data: data})
}

// Resize reports new terminal dimensions.
func (c *Client) Resize(ctx context.Context, cols, rows int) error {
	return c.Send(ctx, term.Message{Type: term.MsgResize, Cols: cols, Rows: rows})
}

// ChangeDir asks the server to re-point the session's working directory.
func (c *Client) ChangeDir(ctx context.Context, dir string) error {
	return c.Send(ctx, term.Message{Type: term.MsgCwd, Data: dir})
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.cfg.OnState != nil {
		c.cfg.OnState(s, err)
	}
}

func (c *Client) endpoint() string {
	q := url.Values{}
	if id := c.SessionID(); id != "" {
		q.Set("sessionId", id)
	}
	if c.cfg.Cwd != "" {
		q.Set("cwd", c.cfg.Cwd)
	}
	if c.cfg.Ephemeral {
		q.Set("persistent", "false")
	}
	if len(q) == 0 {
		return c.cfg.URL
	}
	return c.cfg.URL + "?" + q.Encode()
}

// classifyClose maps a read error to the episode outcome: nil for a close
// the server meant (normal, session destroyed), ErrReplaced when another
// connection took the session over, and a retryable error for everything
// else (heartbeat timeout, network failure).
func classifyClose(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	case websocket.StatusCode(term.CloseSessionDestroyed):
		return nil
	case websocket.StatusCode(term.CloseReplaced):
		return ErrReplaced
	}
	return fmt.Errorf("read: %w", err)
}
