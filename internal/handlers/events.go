package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/watcher"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Watcher publishes workspace filesystem changes. Set from main; nil disables
// the events endpoint.
var Watcher *watcher.Watcher

// EventsWS streams workspace change events to the client as JSON frames.
// The client sends nothing; the read side only tracks connection liveness.
func EventsWS(w http.ResponseWriter, r *http.Request) {
	if Watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "File watcher not initialized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[events] websocket accept failed: %v", err)
		return
	}

	ctx := conn.CloseRead(r.Context())

	events, cancel := Watcher.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "watcher stopped")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
