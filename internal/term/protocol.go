package term

import (
	"encoding/json"
	"fmt"
)

// Message types sent server → client.
const (
	MsgConnected = "connected"
	MsgOutput    = "output"
	MsgExit      = "exit"
	MsgError     = "error"
	MsgPong      = "pong"
)

// Message types sent client → server.
const (
	MsgInput  = "input"
	MsgResize = "resize"
	MsgPing   = "ping"
	MsgTitle  = "title"
	MsgCwd    = "cwd"
)

// Application close codes used on the terminal WebSocket.
const (
	// CloseReplaced: a newer connection attached to the same session.
	CloseReplaced = 4000
	// CloseSessionDestroyed: the session was destroyed explicitly or by the
	// idle sweep.
	CloseSessionDestroyed = 4001
	// CloseHeartbeatTimeout: no traffic (including pongs) within the
	// heartbeat window.
	CloseHeartbeatTimeout = 4002
	// CloseSessionLimit: creation rejected, too many concurrent sessions.
	CloseSessionLimit = 4429
	// CloseSpawnFailed: the shell process could not be started.
	CloseSpawnFailed = 4500
)

// Message is the wire frame exchanged over the terminal WebSocket. One JSON
// message per WebSocket frame; unused fields are omitted.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`

	// connected
	SessionID  string `json:"sessionId,omitempty"`
	WorkingDir string `json:"workingDirectory,omitempty"`
	Title      string `json:"title,omitempty"`

	// resize
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// exit
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

// DecodeClientMessage parses an inbound frame. It returns an error for
// unparsable JSON, wrong field types, or an unknown type; callers report the
// error on the transport and keep the connection open.
func DecodeClientMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed message: %w", err)
	}
	switch msg.Type {
	case MsgInput, MsgResize, MsgPing, MsgTitle, MsgCwd:
		return msg, nil
	case "":
		return Message{}, fmt.Errorf("message missing type")
	default:
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// ConnectedMessage confirms an attach, echoing the resolved session state.
func ConnectedMessage(id, workingDir, title string) Message {
	return Message{Type: MsgConnected, SessionID: id, WorkingDir: workingDir, Title: title}
}

// OutputMessage wraps a chunk of PTY output.
func OutputMessage(chunk []byte) Message {
	return Message{Type: MsgOutput, Data: string(chunk)}
}

// ExitMessage reports process termination.
func ExitMessage(st ExitStatus) Message {
	code := st.Code
	return Message{Type: MsgExit, ExitCode: &code, Signal: st.Signal}
}

// ErrorMessage reports a non-fatal error to the client.
func ErrorMessage(detail string) Message {
	return Message{Type: MsgError, Data: detail}
}

// PongMessage answers a client ping.
func PongMessage() Message {
	return Message{Type: MsgPong}
}
