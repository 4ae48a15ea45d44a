package handlers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/watcher"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestEventsStreamDeliversChanges(t *testing.T) {
	srv := setupTerminal(t, term.Options{})
	root := Resolver.DefaultRoot()

	wt, err := watcher.New([]string{root})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	if err := wt.Start(); err != nil {
		t.Fatalf("watcher start: %v", err)
	}
	Watcher = wt
	t.Cleanup(func() {
		Watcher = nil
		wt.Stop()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Give the subscription a moment before generating the change.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(root, "c880.bench")
	if err := os.WriteFile(target, []byte("INPUT(1)\n"), 0644); err != nil {
		t.Fatal(err)
	}

	for {
		var ev watcher.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if ev.Path == target {
			if ev.Op != "create" && ev.Op != "write" {
				t.Errorf("op = %q, want create or write", ev.Op)
			}
			return
		}
	}
}
