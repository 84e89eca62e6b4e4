package history

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"ftm/internal/ftmerr"
	"ftm/internal/snapstore"
)

// Limits is the pair of quotas the controller enforces (§4.4).
type Limits struct {
	MaxHistory int
	MaxQuota   int64
}

// persisted is the on-disk shape of index.json.
type persisted struct {
	History []Entry `json:"history"`
}

// Index is the in-memory, quota-bounded, persisted log of history entries.
// A single writer/many readers discipline is implemented with a
// sync.RWMutex: Append takes the exclusive lock for the whole
// append+trim+persist critical section; all read operations take the shared
// lock.
type Index struct {
	mu         sync.RWMutex
	entries    []Entry
	lastByFile map[string][]int // file -> ascending positions into entries

	path   string
	store  *snapstore.Store
	limits Limits

	onQuotaPressure func(file string) // §7 QuotaExhausted, logged non-fatal
}

// New constructs an empty Index bound to path and store, persisting nothing
// until the first Append. Use Load to restore a persisted index.json.
func New(path string, store *snapstore.Store, limits Limits) *Index {
	return &Index{
		path:       path,
		store:      store,
		limits:     limits,
		lastByFile: make(map[string][]int),
	}
}

// Load reads path (typically .ftm/index.json) and rebuilds the derived
// per-file position lists. A missing file is treated as an empty index.
func Load(path string, store *snapstore.Store, limits Limits) (*Index, error) {
	idx := New(path, store, limits)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, ftmerr.New(ftmerr.KindIO, "read index", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ftmerr.New(ftmerr.KindCorrupt, "index.json is not valid JSON", err)
	}
	idx.entries = p.History
	idx.rebuildLookup()
	return idx, nil
}

// SetQuotaPressureHook registers a callback invoked whenever trimming stops
// short of satisfying quota because it would strip a live file's last
// history entry (§4.4, §7 QuotaExhausted).
func (idx *Index) SetQuotaPressureHook(fn func(file string)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.onQuotaPressure = fn
}

// SetLimits updates the quotas used by future Append calls (e.g. after a
// config change via /api/config).
func (idx *Index) SetLimits(limits Limits) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.limits = limits
}

func (idx *Index) rebuildLookup() {
	idx.lastByFile = make(map[string][]int, len(idx.entries))
	for i, e := range idx.entries {
		idx.lastByFile[e.File] = append(idx.lastByFile[e.File], i)
	}
}

// save serializes the whole index and writes it via temp-file-plus-rename.
// Called with idx.mu held for write.
func (idx *Index) save() error {
	data, err := json.MarshalIndent(persisted{History: idx.entries}, "", "  ")
	if err != nil {
		return ftmerr.New(ftmerr.KindIO, "marshal index", err)
	}
	if err := snapstore.AtomicWriteFile(idx.path, data, 0o600); err != nil {
		return ftmerr.New(ftmerr.KindIO, "persist index", err)
	}
	return nil
}

// AppendResult describes what Append actually did.
type AppendResult struct {
	Appended bool
	Entry    Entry
}

// Append validates invariants 4 and 5, appends the entry if valid, enforces
// quota, and persists. A call that would violate invariant 4 (duplicate
// non-null checksum for the file) is a no-op returning Appended=false. A
// delete for a file whose last entry is already a delete (invariant 5) is
// likewise a no-op.
func (idx *Index) Append(e Entry) (AppendResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	last, hasLast := idx.lastEntryLocked(e.File)
	if hasLast {
		if e.Op == OpDelete && last.Op == OpDelete {
			return AppendResult{}, nil // invariant 5: already deleted
		}
		if e.Op != OpDelete && last.Op != OpDelete &&
			e.Checksum != "" && e.Checksum == last.Checksum {
			return AppendResult{}, nil // invariant 4: no-op modify suppression
		}
	} else if e.Op == OpDelete {
		return AppendResult{}, nil // nothing to delete
	}

	idx.entries = append(idx.entries, e)
	pos := len(idx.entries) - 1
	idx.lastByFile[e.File] = append(idx.lastByFile[e.File], pos)

	idx.enforceQuotaLocked()

	if err := idx.save(); err != nil {
		// Roll back the in-memory mutation: persistence failures are fatal
		// to the mutation per §7.
		idx.entries = idx.entries[:pos]
		idx.rebuildLookup()
		return AppendResult{}, err
	}

	return AppendResult{Appended: true, Entry: e}, nil
}

func (idx *Index) lastEntryLocked(file string) (Entry, bool) {
	positions := idx.lastByFile[file]
	if len(positions) == 0 {
		return Entry{}, false
	}
	return idx.entries[positions[len(positions)-1]], true
}

// History returns the ordered list of entries for file.
func (idx *Index) History(file string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	positions := idx.lastByFile[file]
	out := make([]Entry, 0, len(positions))
	for _, p := range positions {
		out = append(out, idx.entries[p])
	}
	return out
}

// LatestChecksum returns the checksum of the most recent non-delete entry
// for file, or ("", false) if the file has no live entry.
func (idx *Index) LatestChecksum(file string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.lastEntryLocked(file)
	if !ok || e.Op == OpDelete {
		return "", false
	}
	return e.Checksum, true
}

// LatestEntry returns the most recent entry for file regardless of op.
func (idx *Index) LatestEntry(file string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lastEntryLocked(file)
}

// Activity returns entries with since <= timestamp <= until, sorted
// ascending by timestamp (entries are already in that order by
// construction). A zero time.Time for since or until leaves that bound
// unconstrained. When includeDeleted is false, entries belonging to a file
// whose current latest entry is a delete are omitted.
func (idx *Index) Activity(since, until time.Time, includeDeleted bool) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range idx.entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		if !includeDeleted {
			last, _ := idx.lastEntryLocked(e.File)
			if last.Op == OpDelete {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// FileNode is one node of the tree returned by Files: a leaf carries Count
// (the number of history entries for that file), a directory carries
// Children keyed by path segment.
type FileNode struct {
	Name     string               `json:"name"`
	Count    *int                 `json:"count,omitempty"`
	Children map[string]*FileNode `json:"children,omitempty"`
}

// Files builds a trie keyed by path segment from the flat per-file map,
// fresh on every call — no parent pointers are retained between calls, per
// §9's design note. A file is omitted when includeDeleted is false and its
// latest entry is a delete.
func (idx *Index) Files(includeDeleted bool) []*FileNode {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	root := &FileNode{Children: map[string]*FileNode{}}
	files := make([]string, 0, len(idx.lastByFile))
	for f := range idx.lastByFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		last, _ := idx.lastEntryLocked(file)
		if !includeDeleted && last.Op == OpDelete {
			continue
		}
		count := len(idx.lastByFile[file])
		insertPath(root, strings.Split(file, "/"), count)
	}
	return sortedChildren(root)
}

func insertPath(node *FileNode, segments []string, count int) {
	seg := segments[0]
	child, ok := node.Children[seg]
	if !ok {
		child = &FileNode{Name: seg}
		node.Children[seg] = child
	}
	if len(segments) == 1 {
		c := count
		child.Count = &c
		return
	}
	if child.Children == nil {
		child.Children = map[string]*FileNode{}
	}
	insertPath(child, segments[1:], count)
}

func sortedChildren(node *FileNode) []*FileNode {
	names := make([]string, 0, len(node.Children))
	for n := range node.Children {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*FileNode, 0, len(names))
	for _, n := range names {
		child := node.Children[n]
		if child.Children != nil {
			child.Children = childrenMap(sortedChildren(child))
		}
		out = append(out, child)
	}
	return out
}

func childrenMap(nodes []*FileNode) map[string]*FileNode {
	if len(nodes) == 0 {
		return nil
	}
	m := make(map[string]*FileNode, len(nodes))
	for _, n := range nodes {
		m[n.Name] = n
	}
	return m
}

// LiveFiles returns every file whose current latest entry is not a delete,
// used by the scanner to detect on-disk removals.
func (idx *Index) LiveFiles() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.lastByFile))
	for file, positions := range idx.lastByFile {
		if idx.entries[positions[len(positions)-1]].Live() {
			out = append(out, file)
		}
	}
	return out
}

// Stats reports the current history length and estimated live-referenced
// quota usage, for /api/stats.
type Stats struct {
	History    int
	MaxHistory int
	Quota      int64
	MaxQuota   int64
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		History:    len(idx.entries),
		MaxHistory: idx.limits.MaxHistory,
		Quota:      idx.liveQuotaLocked(),
		MaxQuota:   idx.limits.MaxQuota,
	}
}

func (idx *Index) liveQuotaLocked() int64 {
	var total int64
	for file, positions := range idx.lastByFile {
		last := idx.entries[positions[len(positions)-1]]
		if last.Op == OpDelete || last.Size == nil {
			continue
		}
		_ = file
		total += *last.Size
	}
	return total
}
