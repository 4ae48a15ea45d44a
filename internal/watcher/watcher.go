// Package watcher broadcasts filesystem change events from the workspace
// roots to connected clients, so the browser file tree refreshes without
// polling.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one debounced filesystem change.
type Event struct {
	Path string    `json:"path"`
	Op   string    `json:"op"` // create, write, remove, rename
	At   time.Time `json:"at"`
}

// Watcher watches the workspace roots recursively and fans out debounced
// change events to subscribers. Slow subscribers drop events rather than
// block the loop.
type Watcher struct {
	fs       *fsnotify.Watcher
	roots    []string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]Event
	subs    map[chan Event]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over the given roots.
func New(roots []string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fs:       fs,
		roots:    roots,
		debounce: 300 * time.Millisecond,
		pending:  make(map[string]Event),
		subs:     make(map[chan Event]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start walks the roots, registers every directory, and begins relaying
// events.
func (w *Watcher) Start() error {
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // keep walking
			}
			if d.IsDir() {
				if err := w.fs.Add(path); err != nil {
					log.Printf("[watcher] cannot watch %s: %v", path, err)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.flushLoop()
	return nil
}

// Stop shuts the watcher down and closes all subscriber channels.
func (w *Watcher) Stop() {
	w.cancel()
	w.fs.Close()
	w.wg.Wait()

	w.mu.Lock()
	for ch := range w.subs {
		close(ch)
	}
	w.subs = make(map[chan Event]struct{})
	w.mu.Unlock()
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod != 0 && ev.Op&^fsnotify.Chmod == 0 {
				continue
			}
			// New directories need their own watch for recursion.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fs.Add(ev.Name); err != nil {
						log.Printf("[watcher] cannot watch new dir %s: %v", ev.Name, err)
					}
				}
			}
			w.mu.Lock()
			w.pending[ev.Name] = Event{Path: ev.Name, Op: opString(ev.Op), At: time.Now()}
			w.mu.Unlock()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

// flushLoop delivers pending events once they have settled for the debounce
// window.
func (w *Watcher) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if len(w.pending) == 0 {
				w.mu.Unlock()
				continue
			}
			events := make([]Event, 0, len(w.pending))
			for _, ev := range w.pending {
				events = append(events, ev)
			}
			w.pending = make(map[string]Event)
			subs := make([]chan Event, 0, len(w.subs))
			for ch := range w.subs {
				subs = append(subs, ch)
			}
			w.mu.Unlock()

			for _, ev := range events {
				for _, ch := range subs {
					select {
					case ch <- ev:
					default: // subscriber too slow, drop
					}
				}
			}
		}
	}
}

func opString(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	default:
		return "change"
	}
}
