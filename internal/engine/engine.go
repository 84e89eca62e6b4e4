// Package engine implements the engine (C10): the single orchestrator that
// owns the watched root, its configuration, the history index, the
// snapshot store, and the scanner/watcher background tasks, and exposes the
// operations consumed by internal/httpapi.
//
// Grounded on original_source/src/server.rs's AppState/WatchContext model
// (one engine instance per checked-out directory, config+index+store wired
// together at checkout time) and on witnessd's cmd/witnessd/ipc_daemon.go
// IPCDaemon for the Start/Stop lifecycle idiom, generalized from a
// unix-socket IPC server to the per-file Idle/Hashing/Appending pipeline
// §4.10 requires.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ftm/internal/config"
	"ftm/internal/differ"
	"ftm/internal/ftmerr"
	"ftm/internal/hasher"
	"ftm/internal/history"
	"ftm/internal/matcher"
	"ftm/internal/restorer"
	"ftm/internal/scanner"
	"ftm/internal/snapstore"
	"ftm/internal/watcher"
)

// ShutdownGrace is the bounded deadline §5 gives in-flight Hashing/Appending
// work to finish before a Stop abandons it.
const ShutdownGrace = 5 * time.Second

// Engine is the single orchestrator for one checked-out watched directory.
// Tests instantiate independent Engines rooted at temp directories rather
// than reaching through a process-wide singleton, per §9.
type Engine struct {
	root       string // absolute path to the watched directory
	ftmDir     string // root/.ftm
	configPath string

	cfg     *config.Config
	idx     *history.Index
	store   *snapstore.Store
	matcher *matcher.Matcher
	scanner *scanner.Scanner
	watcher *watcher.Watcher
	lock    *instanceLock
	log     *slog.Logger

	genMu       sync.Mutex
	generations map[string]uint64

	pathMu    sync.Mutex
	pathLocks map[string]*sync.Mutex

	stopCh    chan struct{}
	wg        sync.WaitGroup
	stopped   bool
	lifecycle sync.Mutex
}

// Checkout initializes (or re-opens) the .ftm working tree under root and
// returns an Engine ready for Start. root must be an absolute, existing
// directory. Mirrors original_source's checkout handler: config.yaml and an
// empty index.json are created if missing, then both are loaded.
func Checkout(root string, log *slog.Logger) (*Engine, error) {
	if !filepath.IsAbs(root) {
		return nil, ftmerr.New(ftmerr.KindInvalidConfig, "watched directory must be an absolute path", nil)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, ftmerr.New(ftmerr.KindNotFound, "watched directory does not exist: "+root, err)
	}
	if log == nil {
		log = slog.Default()
	}

	ftmDir := filepath.Join(root, ".ftm")
	if err := config.EnsureDirectories(ftmDir); err != nil {
		return nil, err
	}

	lock, err := acquireInstanceLock(filepath.Join(ftmDir, "ftmd.lock"))
	if err != nil {
		return nil, ftmerr.New(ftmerr.KindBusy, "directory is already checked out by another ftmd process", err)
	}

	configPath := filepath.Join(ftmDir, "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		lock.release()
		return nil, err
	}
	if err := cfg.Save(configPath); err != nil {
		lock.release()
		return nil, err
	}

	store, err := snapstore.New(filepath.Join(ftmDir, "snapshots"))
	if err != nil {
		lock.release()
		return nil, err
	}

	snap := cfg.Snapshot()
	limits := history.Limits{MaxHistory: snap.Settings.MaxHistory, MaxQuota: snap.Settings.MaxQuota}
	idx, err := history.Load(filepath.Join(ftmDir, "index.json"), store, limits)
	if err != nil {
		lock.release()
		return nil, err
	}
	idx.SetQuotaPressureHook(func(file string) {
		log.Warn("quota exhausted: cannot trim further without deleting the last live entry", "file", file)
	})

	m := matcher.New(snap.Watch.Patterns, snap.Watch.Exclude)
	sc := scanner.New(root, m, snap.Settings.MaxFileSize, store, idx, log.WithGroup("scanner"))

	settle := time.Duration(snap.Settings.DebounceMinMs) * time.Millisecond
	w, err := watcher.New(root, m, settle, log.WithGroup("watcher"))
	if err != nil {
		lock.release()
		return nil, ftmerr.New(ftmerr.KindIO, "start filesystem watcher", err)
	}

	return &Engine{
		root:        root,
		ftmDir:      ftmDir,
		configPath:  configPath,
		cfg:         cfg,
		idx:         idx,
		store:       store,
		matcher:     m,
		scanner:     sc,
		watcher:     w,
		lock:        lock,
		log:         log,
		generations: make(map[string]uint64),
		pathLocks:   make(map[string]*sync.Mutex),
		stopCh:      make(chan struct{}),
	}, nil
}

// Root returns the absolute watched directory, for /api/health's watch_dir.
func (e *Engine) Root() string { return e.root }

// Start launches the watcher's OS-event ingestion, the event-to-history
// pipeline, and the periodic scan/clean timers. An initial scan runs
// synchronously so the index reflects on-disk reality before Start returns.
func (e *Engine) Start() error {
	if _, err := e.scanner.Scan(); err != nil {
		return err
	}
	if err := e.watcher.Start(); err != nil {
		return err
	}

	e.wg.Add(1)
	go e.ingestLoop()

	snap := e.cfg.Snapshot()
	if snap.Settings.ScanIntervalSec > 0 {
		e.wg.Add(1)
		go e.runTicker(time.Duration(snap.Settings.ScanIntervalSec)*time.Second, func() {
			if _, err := e.scanner.Scan(); err != nil {
				e.log.Warn("periodic scan failed", "error", err)
			}
		})
	}
	if snap.Settings.CleanIntervalSec > 0 {
		e.wg.Add(1)
		go e.runTicker(time.Duration(snap.Settings.CleanIntervalSec)*time.Second, func() {
			if _, err := e.idx.Clean(); err != nil {
				e.log.Warn("periodic clean failed", "error", err)
			}
		})
	}
	return nil
}

func (e *Engine) runTicker(interval time.Duration, fn func()) {
	defer e.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			fn()
		}
	}
}

// Stop signals shutdown, stops new event ingestion immediately, and waits up
// to ShutdownGrace for in-flight Hashing/Appending work to finish before
// abandoning it, per §5.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true

	close(e.stopCh)
	watchErr := e.watcher.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		e.log.Warn("shutdown grace period elapsed; abandoning in-flight work")
	}

	e.lock.release()
	return watchErr
}

func (e *Engine) ingestLoop() {
	defer e.wg.Done()
	events := e.watcher.Events()
	errs := e.watcher.Errors()
	for {
		select {
		case <-e.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			gen := e.nextGeneration(ev.Path)
			e.wg.Add(1)
			go e.handleSettledEvent(ev, gen)
		case err, ok := <-errs:
			if !ok {
				continue
			}
			e.log.Warn("watcher error", "error", err)
		}
	}
}

// nextGeneration bumps and returns the generation counter for path. Every
// watcher settle for the same path gets a strictly increasing generation;
// handleSettledEvent uses it to detect that it has been superseded.
func (e *Engine) nextGeneration(path string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	e.generations[path]++
	return e.generations[path]
}

// isCurrentGeneration reports whether gen is still the latest generation
// recorded for path, i.e. no newer event for the same path has arrived
// since this one was dispatched.
func (e *Engine) isCurrentGeneration(path string, gen uint64) bool {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.generations[path] == gen
}

// pathLock returns the per-path mutex serializing a single file's
// Hashing/Appending pipeline (§4.10) against both other events for the same
// path and a concurrent Restore. Locks are created lazily and kept for the
// lifetime of the Engine; the set of distinct paths ever touched is bounded
// by the watched tree, so this never grows unbounded in practice.
func (e *Engine) pathLock(path string) *sync.Mutex {
	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	m, ok := e.pathLocks[path]
	if !ok {
		m = &sync.Mutex{}
		e.pathLocks[path] = m
	}
	return m
}

// handleSettledEvent runs the Hashing stage for a settled watcher event and,
// if no newer event for the same path arrived while it ran, the Appending
// stage. A superseded Hashing result is discarded rather than appended —
// the newer event's own handler will redo the work against current disk
// state. This is a simplification of true hash-cancellation: hasher.HashFile
// has no context parameter, so a preempted hash still runs to completion, it
// just never reaches Appending.
func (e *Engine) handleSettledEvent(ev watcher.Event, gen uint64) {
	defer e.wg.Done()

	pl := e.pathLock(ev.Path)
	pl.Lock()
	defer pl.Unlock()

	if ev.Kind == watcher.Delete {
		if !e.isCurrentGeneration(ev.Path, gen) {
			return
		}
		if _, err := e.idx.Append(history.Entry{
			Timestamp: time.Now().UTC(),
			File:      ev.Path,
			Op:        history.OpDelete,
		}); err != nil {
			e.log.Error("append delete entry failed", "file", ev.Path, "error", err)
		}
		return
	}

	snap := e.cfg.Snapshot()
	absPath := filepath.Join(e.root, ev.Path)
	hashed, err := hasher.HashFile(absPath, snap.Settings.MaxFileSize)
	if err != nil {
		if kind, ok := ftmerr.As(err); ok && kind == ftmerr.KindTooLarge {
			e.log.Warn("file exceeds max_file_size, event dropped", "file", ev.Path)
			return
		}
		if kind, ok := ftmerr.As(err); ok && kind == ftmerr.KindNotFound {
			return // settled as Upsert but vanished before we could read it
		}
		e.log.Warn("failed to hash file", "file", ev.Path, "error", err)
		return
	}

	if !e.isCurrentGeneration(ev.Path, gen) {
		return // preempted: a newer event for this path superseded us
	}

	latest, hasLatest := e.idx.LatestChecksum(ev.Path)
	if hasLatest && latest == hashed.Checksum {
		return
	}
	if _, err := e.store.Put(hashed.Bytes); err != nil {
		e.log.Warn("failed to store snapshot", "file", ev.Path, "error", err)
		return
	}

	op := history.OpModify
	if !hasLatest {
		op = history.OpCreate
	}
	mtimeNanos := time.Now().UnixNano()
	if info, statErr := os.Stat(absPath); statErr == nil {
		mtimeNanos = info.ModTime().UnixNano()
	}
	if _, err := e.idx.Append(history.Entry{
		Timestamp:  time.Now().UTC(),
		File:       ev.Path,
		Op:         op,
		Checksum:   hashed.Checksum,
		Size:       &hashed.Size,
		MtimeNanos: &mtimeNanos,
	}); err != nil {
		e.log.Error("append history entry failed", "file", ev.Path, "error", err)
	}
}

// Scan runs an explicit full-tree reconciliation (POST /api/scan).
func (e *Engine) Scan() (scanner.Result, error) { return e.scanner.Scan() }

// Clean runs the quota trim pass plus an orphaned-blob sweep (POST /api/clean).
func (e *Engine) Clean() (history.CleanResult, error) { return e.idx.Clean() }

// Files returns the path-segment tree for GET /api/files.
func (e *Engine) Files(includeDeleted bool) []*history.FileNode { return e.idx.Files(includeDeleted) }

// History returns the ordered entries for a single file (GET /api/history).
func (e *Engine) History(file string) []history.Entry { return e.idx.History(file) }

// Activity returns entries within a time window across all files (GET /api/activity).
func (e *Engine) Activity(since, until time.Time, includeDeleted bool) []history.Entry {
	return e.idx.Activity(since, until, includeDeleted)
}

// Stats reports current history/quota usage (GET /api/stats).
func (e *Engine) Stats() history.Stats { return e.idx.Stats() }

// Snapshot returns a stored blob's full contents (GET /api/snapshot).
func (e *Engine) Snapshot(checksum string) ([]byte, error) { return e.store.Get(checksum) }

// Diff computes the hunks between two checksums' contents for a file
// (GET /api/diff). An empty from means "empty vs to" (full insert).
func (e *Engine) Diff(from, to string) (differ.Result, error) {
	var fromBytes []byte
	if from != "" {
		b, err := e.store.Get(from)
		if err != nil {
			return differ.Result{}, err
		}
		fromBytes = b
	}
	toBytes, err := e.store.Get(to)
	if err != nil {
		return differ.Result{}, err
	}
	return differ.Diff(fromBytes, toBytes), nil
}

// Restore resolves a checksum prefix (>=8 hex chars) against file's history
// and materializes the matching blob back to file's path (POST
// /api/restore). It does not mutate the index directly: the resulting write
// settles through the watcher like any other change, per §4.9.
//
// Restore contends for file's path lock with the same Hashing/Appending
// pipeline events run under (§4.10): rather than block behind an in-flight
// hash/append or another restore of the same file, it fails fast with
// ftmerr.KindBusy so an HTTP caller can retry, per §7.
func (e *Engine) Restore(file, checksumPrefix string) error {
	checksum, err := e.resolveChecksum(file, checksumPrefix)
	if err != nil {
		return err
	}

	pl := e.pathLock(file)
	if !pl.TryLock() {
		return ftmerr.New(ftmerr.KindBusy, fmt.Sprintf("%s is busy (a hash/append or another restore is in progress)", file), nil)
	}
	defer pl.Unlock()

	absPath := filepath.Join(e.root, file)
	return restorer.Restore(e.store, absPath, checksum)
}

// resolveChecksum implements the checksum-prefix restore resolution
// (§SUPPLEMENT): prefix must be at least 8 hex characters, and must match
// exactly one distinct checksum within file's history.
func (e *Engine) resolveChecksum(file, prefix string) (string, error) {
	if len(prefix) < 8 {
		return "", ftmerr.New(ftmerr.KindNotFound, "checksum prefix must be at least 8 hex characters", nil)
	}
	entries := e.idx.History(file)
	seen := map[string]struct{}{}
	var matches []string
	for _, entry := range entries {
		if entry.Checksum == "" || !hasPrefix(entry.Checksum, prefix) {
			continue
		}
		if _, ok := seen[entry.Checksum]; ok {
			continue
		}
		seen[entry.Checksum] = struct{}{}
		matches = append(matches, entry.Checksum)
	}
	switch len(matches) {
	case 0:
		return "", ftmerr.New(ftmerr.KindNotFound, fmt.Sprintf("no checksum matching %q in history of %s", prefix, file), nil)
	case 1:
		return matches[0], nil
	default:
		return "", ftmerr.New(ftmerr.KindAmbiguousCheck, fmt.Sprintf("checksum prefix %q is ambiguous for %s", prefix, file), nil)
	}
}

func hasPrefix(checksum, prefix string) bool {
	if len(prefix) > len(checksum) {
		return false
	}
	return checksum[:len(prefix)] == prefix
}

// ConfigGet resolves a dotted config key (GET /api/config).
func (e *Engine) ConfigGet(dotted string) (any, error) { return e.cfg.Get(dotted) }

// ConfigSet applies a dotted config key/value update, persists it, and
// propagates any change in quotas to the live index (POST /api/config).
func (e *Engine) ConfigSet(dotted, value string) error {
	if err := e.cfg.Set(dotted, value); err != nil {
		return err
	}
	if err := e.cfg.Save(e.configPath); err != nil {
		return err
	}
	snap := e.cfg.Snapshot()
	e.idx.SetLimits(history.Limits{MaxHistory: snap.Settings.MaxHistory, MaxQuota: snap.Settings.MaxQuota})
	return nil
}

// LogDir returns the directory rotated log files live in, for GET /api/logs.
func (e *Engine) LogDir() string { return filepath.Join(e.ftmDir, "logs") }
