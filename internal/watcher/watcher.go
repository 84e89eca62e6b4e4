// Package watcher implements the event watcher (C7): OS filesystem event
// ingestion with a per-path debounce producing one settled event per path,
// per §4.7.
//
// Grounded on the teacher's own watcher for the fsnotify wiring and overall
// shape (Events()/Errors() channels, a background ingestion loop feeding a
// separate settle stage) but generalized from its single global-interval
// debounce (one ticker re-checking every tracked path's last-modified time)
// into the specification's per-path debounce: one timer per in-flight path,
// reset on every new event for that path, firing its own settle
// independently of all other paths. original_source/src/watcher.rs instead
// coalesces every event into one global 500ms debounce followed by a full
// rescan; the specification's explicit per-path text in §4.7 supersedes
// that simpler design.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ftm/internal/matcher"
)

// Kind is the decided outcome of a settled path.
type Kind int

const (
	Upsert Kind = iota
	Delete
)

// Event is one debounced, settled filesystem change.
type Event struct {
	Path string // relative, forward-slash normalized
	Kind Kind
}

const (
	minSettle = 250 * time.Millisecond
	maxSettle = 1 * time.Second
)

// Watcher watches root recursively. fsnotify has no native recursive mode,
// so every directory is added individually at Start, and newly created
// directories are added as they appear.
type Watcher struct {
	root    string
	matcher *matcher.Matcher
	settle  time.Duration
	log     *slog.Logger

	fsWatcher *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	wg        sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New builds a Watcher. settle is clamped to [250ms, 1s] per §4.7.
func New(root string, m *matcher.Matcher, settle time.Duration, log *slog.Logger) (*Watcher, error) {
	if settle < minSettle {
		settle = minSettle
	}
	if settle > maxSettle {
		settle = maxSettle
	}
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:      root,
		matcher:   m,
		settle:    settle,
		log:       log,
		fsWatcher: fsw,
		events:    make(chan Event, 256),
		errors:    make(chan error, 16),
		done:      make(chan struct{}),
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Events returns the channel of settled, debounced events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of non-fatal ingestion errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start adds every directory under root (pruning excluded directories) to
// the OS watch and launches the ingestion loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) addTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // unreadable directory at startup: skip, not fatal
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(w.root, sub)
		if err != nil {
			continue
		}
		if w.matcher.ExcludedDir(matcher.Normalize(rel)) {
			continue
		}
		if err := w.addTree(sub); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleRawEvent(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleRawEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return // e.g. Chmod: not a mutation we track
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return
	}
	rel = matcher.Normalize(rel)
	if rel == "" {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if !w.matcher.ExcludedDir(rel) {
				if err := w.addTree(ev.Name); err != nil {
					w.log.Warn("watcher: failed to watch new directory", "dir", ev.Name, "error", err)
				}
			}
			return // the directory's own creation is not a trackable file event
		}
	}

	if !w.matcher.Match(rel) {
		return
	}

	w.resetTimer(rel)
}

// resetTimer implements the per-path debounce: a new event for path cancels
// any pending timer for that path and starts a fresh one, so only the final
// event within the settle window produces an Event. Timers for distinct
// paths run independently.
func (w *Watcher) resetTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() { w.settleFired(path) })
}

func (w *Watcher) settleFired(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	// The decided kind is based on existence at settle time, not on which
	// raw op triggered the final reset: this is what makes rename (Rename
	// on the old name, Create on the new name) fall naturally out as
	// delete(old) + upsert(new) without any special-case bookkeeping.
	kind := Upsert
	if _, err := os.Stat(filepath.Join(w.root, path)); err != nil {
		kind = Delete
	}

	select {
	case w.events <- Event{Path: path, Kind: kind}:
	case <-w.done:
	}
}

// Stop cancels all pending debounce timers and shuts down the ingestion
// loop. It does not wait for Engine work already triggered by emitted
// events; the caller owns that separate, bounded shutdown deadline (§5).
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = map[string]*time.Timer{}
	w.mu.Unlock()

	return err
}
