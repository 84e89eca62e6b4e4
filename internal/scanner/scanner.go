// Package scanner implements the scanner (C6): a full-tree reconciliation
// of on-disk reality against the history index, run on startup, on an
// interval, or on explicit request.
//
// Grounded on original_source/src/scanner.rs's walk_and_snapshot/
// detect_deletes two-phase algorithm and on edward-ap-class-collector's
// internal/walkwalk for the filepath.WalkDir-based tree walk with early
// directory pruning.
package scanner

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"ftm/internal/ftmerr"
	"ftm/internal/hasher"
	"ftm/internal/history"
	"ftm/internal/matcher"
	"ftm/internal/snapstore"
)

// Result is the outcome of one scan pass, matching the /api/scan response
// shape exactly (§6): {created, modified, deleted}.
type Result struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

// Scanner reconciles the watched root against the index.
type Scanner struct {
	root        string
	matcher     *matcher.Matcher
	maxFileSize int64
	store       *snapstore.Store
	idx         *history.Index
	log         *slog.Logger

	mu       sync.Mutex
	inflight *sync.WaitGroup
	lastRes  Result
	lastErr  error
}

// New builds a Scanner rooted at root.
func New(root string, m *matcher.Matcher, maxFileSize int64, store *snapstore.Store, idx *history.Index, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{root: root, matcher: m, maxFileSize: maxFileSize, store: store, idx: idx, log: log}
}

// Scan runs a reconciliation pass. Concurrent calls are deduplicated: a
// caller arriving while a scan is in progress joins the in-flight result
// rather than starting a second walk.
func (s *Scanner) Scan() (Result, error) {
	s.mu.Lock()
	if s.inflight != nil {
		wg := s.inflight
		s.mu.Unlock()
		wg.Wait()
		s.mu.Lock()
		res, err := s.lastRes, s.lastErr
		s.mu.Unlock()
		return res, err
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.inflight = wg
	s.mu.Unlock()

	res, err := s.doScan()

	s.mu.Lock()
	s.lastRes, s.lastErr = res, err
	s.inflight = nil
	s.mu.Unlock()
	wg.Done()

	return res, err
}

func (s *Scanner) doScan() (Result, error) {
	var result Result
	scanned := make(map[string]struct{})

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entry: skip, not fatal to the scan
		}
		if path == s.root {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = matcher.Normalize(rel)

		if d.IsDir() {
			if s.matcher.ExcludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.matcher.Match(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.maxFileSize {
			s.log.Warn("scan: file exceeds max_file_size, skipping", "file", rel, "size", info.Size())
			return nil
		}

		scanned[rel] = struct{}{}
		s.scanFile(path, rel, info, &result)
		return nil
	})
	if err != nil {
		return result, ftmerr.New(ftmerr.KindIO, "walk watched root", err)
	}

	s.detectDeletes(scanned, &result)
	return result, nil
}

func (s *Scanner) scanFile(path, rel string, info fs.FileInfo, result *Result) {
	mtimeNanos := info.ModTime().UnixNano()
	size := info.Size()

	if last, ok := s.idx.LatestEntry(rel); ok && last.Live() &&
		last.Size != nil && *last.Size == size &&
		last.MtimeNanos != nil && *last.MtimeNanos == mtimeNanos {
		return // fast-skip: unchanged since last scan
	}

	hashed, err := hasher.HashFile(path, s.maxFileSize)
	if err != nil {
		if kind, ok := ftmerr.As(err); ok && kind == ftmerr.KindTooLarge {
			s.log.Warn("scan: file grew past max_file_size mid-scan, skipping", "file", rel)
			return
		}
		s.log.Warn("scan: failed to hash file", "file", rel, "error", err)
		return
	}

	latest, hasLatest := s.idx.LatestChecksum(rel)
	if hasLatest && latest == hashed.Checksum {
		return // content unchanged, only metadata (e.g. mtime) moved
	}

	if _, err := s.store.Put(hashed.Bytes); err != nil {
		s.log.Warn("scan: failed to store snapshot", "file", rel, "error", err)
		return
	}

	op := history.OpModify
	if !hasLatest {
		op = history.OpCreate
	}

	appended, err := s.idx.Append(history.Entry{
		Timestamp:  time.Now().UTC(),
		File:       rel,
		Op:         op,
		Checksum:   hashed.Checksum,
		Size:       &hashed.Size,
		MtimeNanos: &mtimeNanos,
	})
	if err != nil {
		s.log.Error("scan: failed to append history entry", "file", rel, "error", err)
		return
	}
	if !appended.Appended {
		return
	}
	if op == history.OpCreate {
		result.Created++
	} else {
		result.Modified++
	}
}

func (s *Scanner) detectDeletes(scanned map[string]struct{}, result *Result) {
	for _, file := range s.idx.LiveFiles() {
		if _, seen := scanned[file]; seen {
			continue
		}
		if !s.matcher.Match(file) {
			continue // no longer in scope, not necessarily gone from disk
		}
		appended, err := s.idx.Append(history.Entry{
			Timestamp: time.Now().UTC(),
			File:      file,
			Op:        history.OpDelete,
		})
		if err != nil {
			s.log.Error("scan: failed to append delete entry", "file", file, "error", err)
			continue
		}
		if appended.Appended {
			result.Deleted++
		}
	}
}
