package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ftm/internal/snapstore"
)

func newTestIndex(t *testing.T, limits Limits) (*Index, *snapstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := snapstore.New(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	idx := New(filepath.Join(dir, "index.json"), store, limits)
	return idx, store
}

func sizePtr(n int64) *int64 { return &n }

func TestAppendThenHistoryContainsLastElement(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 10, MaxQuota: 10000})

	entry := Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpCreate, Checksum: "c1", Size: sizePtr(2)}
	res, err := idx.Append(entry)
	require.NoError(t, err)
	require.True(t, res.Appended)

	hist := idx.History("foo.txt")
	require.Len(t, hist, 1)
	require.Equal(t, entry.Checksum, hist[len(hist)-1].Checksum)
}

func TestNoOpModifySuppression(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 10, MaxQuota: 10000})

	_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpCreate, Checksum: "c1", Size: sizePtr(2)})
	require.NoError(t, err)

	res, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpModify, Checksum: "c1", Size: sizePtr(2)})
	require.NoError(t, err)
	require.False(t, res.Appended, "re-appending the same checksum must be a no-op")
	require.Len(t, idx.History("foo.txt"), 1)
}

func TestAdjacentEntriesNeverShareChecksum(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 10, MaxQuota: 10000})
	checksums := []string{"c1", "c2", "c1", "c3"}
	for _, c := range checksums {
		_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpModify, Checksum: c, Size: sizePtr(1)})
		require.NoError(t, err)
	}
	hist := idx.History("foo.txt")
	for i := 1; i < len(hist); i++ {
		require.NotEqual(t, hist[i-1].Checksum, hist[i].Checksum)
	}
}

func TestDeleteAfterDeleteIsNoOp(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 10, MaxQuota: 10000})
	_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpCreate, Checksum: "c1", Size: sizePtr(1)})
	require.NoError(t, err)
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpDelete})
	require.NoError(t, err)

	res, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpDelete})
	require.NoError(t, err)
	require.False(t, res.Appended)
}

func TestQuotaByCountTrimsOldest(t *testing.T) {
	idx, store := newTestIndex(t, Limits{MaxHistory: 3, MaxQuota: 1 << 30})

	var checksums []string
	for _, body := range []string{"c1", "c2", "c3", "c4"} {
		c, err := store.Put([]byte(body))
		require.NoError(t, err)
		checksums = append(checksums, c)
		_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpModify, Checksum: c, Size: sizePtr(2)})
		require.NoError(t, err)
	}

	require.Len(t, idx.History("foo.txt"), 3)
	require.False(t, store.Exists(checksums[0]), "dropped-only checksum's blob should be removed")
}

func TestQuotaByBytesTrimsOldest(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 100, MaxQuota: 100})

	_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "a.txt", Op: OpCreate, Checksum: "ca", Size: sizePtr(60)})
	require.NoError(t, err)
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "b.txt", Op: OpCreate, Checksum: "cb", Size: sizePtr(60)})
	require.NoError(t, err)

	require.LessOrEqual(t, idx.Stats().Quota, int64(100))
}

func TestQuotaNeverStripsOnlyLiveEntry(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 1, MaxQuota: 1 << 30})
	var pressureFile string
	idx.SetQuotaPressureHook(func(file string) { pressureFile = file })

	_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "a.txt", Op: OpCreate, Checksum: "ca", Size: sizePtr(1)})
	require.NoError(t, err)
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "b.txt", Op: OpCreate, Checksum: "cb", Size: sizePtr(1)})
	require.NoError(t, err)

	// max_history=1 would normally trim a.txt's only entry, but that would
	// leave a live file with zero history, so the controller must stop.
	require.Equal(t, "a.txt", pressureFile)
	require.Len(t, idx.History("a.txt"), 1)
}

func TestLoadRebuildsLookup(t *testing.T) {
	dir := t.TempDir()
	store, err := snapstore.New(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	idx := New(filepath.Join(dir, "index.json"), store, Limits{MaxHistory: 10, MaxQuota: 10000})
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "foo.txt", Op: OpCreate, Checksum: "c1", Size: sizePtr(1)})
	require.NoError(t, err)

	reloaded, err := Load(filepath.Join(dir, "index.json"), store, Limits{MaxHistory: 10, MaxQuota: 10000})
	require.NoError(t, err)
	require.Equal(t, idx.History("foo.txt"), reloaded.History("foo.txt"))
}

func TestFilesTreeOmitsDeletedByDefault(t *testing.T) {
	idx, _ := newTestIndex(t, Limits{MaxHistory: 100, MaxQuota: 1 << 30})
	_, err := idx.Append(Entry{Timestamp: time.Now().UTC(), File: "src/a.txt", Op: OpCreate, Checksum: "c1", Size: sizePtr(1)})
	require.NoError(t, err)
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "src/b.txt", Op: OpCreate, Checksum: "c2", Size: sizePtr(1)})
	require.NoError(t, err)
	_, err = idx.Append(Entry{Timestamp: time.Now().UTC(), File: "src/b.txt", Op: OpDelete})
	require.NoError(t, err)

	tree := idx.Files(false)
	require.Len(t, tree, 1)
	require.Equal(t, "src", tree[0].Name)
	require.Contains(t, tree[0].Children, "a.txt")
	require.NotContains(t, tree[0].Children, "b.txt")

	withDeleted := idx.Files(true)
	require.Contains(t, withDeleted[0].Children, "b.txt")
}
