package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ftm/internal/ftmerr"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Checkout(dir, nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e
}

func TestCheckoutRejectsRelativePath(t *testing.T) {
	if _, err := Checkout("relative/dir", nil); err == nil {
		t.Fatal("expected an error for a relative watched directory")
	}
}

func TestCheckoutRejectsSecondInstance(t *testing.T) {
	dir := t.TempDir()
	e1, err := Checkout(dir, nil)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	defer e1.Stop()

	if _, err := Checkout(dir, nil); err == nil {
		t.Fatal("expected the second checkout of the same directory to fail")
	}
}

func TestEngineInitialScanPicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pre-existing.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := Checkout(dir, nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	defer e.Stop()

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	entries := e.History("pre-existing.txt")
	if len(entries) != 1 || entries[0].Op != "create" {
		t.Fatalf("expected one create entry from the startup scan, got %+v", entries)
	}
}

func TestEngineWatcherProducesHistoryEntry(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	path := filepath.Join(e.Root(), "live.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return len(e.History("live.txt")) == 1
	})

	entries := e.History("live.txt")
	if entries[0].Op != "create" {
		t.Fatalf("expected a create entry, got %+v", entries[0])
	}

	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return len(e.History("live.txt")) == 2
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool {
		entries := e.History("live.txt")
		return len(entries) == 3 && entries[2].Op == "delete"
	})
}

func TestEngineRestoreByChecksumPrefix(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	path := filepath.Join(e.Root(), "doc.txt")
	if err := os.WriteFile(path, []byte("v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(e.History("doc.txt")) == 1 })
	firstChecksum := e.History("doc.txt")[0].Checksum

	if err := os.WriteFile(path, []byte("v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(e.History("doc.txt")) == 2 })

	if err := e.Restore("doc.txt", firstChecksum[:8]); err != nil {
		t.Fatalf("restore: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return len(e.History("doc.txt")) == 3 })
	entries := e.History("doc.txt")
	if entries[2].Checksum != firstChecksum {
		t.Fatalf("expected restore to bring back checksum %s, got %+v", firstChecksum, entries[2])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1\n" {
		t.Fatalf("expected restored file contents %q, got %q", "v1\n", data)
	}
}

func TestEngineRestoreUnknownFileFails(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Restore("missing.txt", "deadbeef"); err == nil {
		t.Fatal("expected restoring an unknown file to fail")
	}
}

func TestEngineRestoreContendingSamePathIsBusy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	path := filepath.Join(e.Root(), "doc.txt")
	if err := os.WriteFile(path, []byte("v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(e.History("doc.txt")) == 1 })
	checksum := e.History("doc.txt")[0].Checksum

	// Hold doc.txt's path lock as if a hash/append or another restore were
	// already in flight for it.
	pl := e.pathLock("doc.txt")
	pl.Lock()
	defer pl.Unlock()

	err := e.Restore("doc.txt", checksum[:8])
	if err == nil {
		t.Fatal("expected a contending restore to fail")
	}
	kind, ok := ftmerr.As(err)
	if !ok || kind != ftmerr.KindBusy {
		t.Fatalf("expected ftmerr.KindBusy, got %v", err)
	}
}

func TestEngineDiffFullInsert(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	path := filepath.Join(e.Root(), "d.txt")
	if err := os.WriteFile(path, []byte("x\ny\nz\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(e.History("d.txt")) == 1 })
	checksum := e.History("d.txt")[0].Checksum

	result, err := e.Diff("", checksum)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if result.OldTotal != 0 || result.NewTotal != 3 {
		t.Fatalf("expected a full insert of 3 lines, got %+v", result)
	}
}

func TestEngineConfigSetPersistsAndAppliesLimits(t *testing.T) {
	e := newTestEngine(t)
	if err := e.ConfigSet("settings.max_history", "7"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	v, err := e.ConfigGet("settings.max_history")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestEngineCleanSweepsOrphanedBlobs(t *testing.T) {
	e := newTestEngine(t)
	if err := e.ConfigSet("settings.max_history", "1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	path := filepath.Join(e.Root(), "churn.txt")
	var prevChecksum string
	for _, body := range []string{"1\n", "2\n", "3\n"} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		// max_history=1 caps global entry count at 1, so this file's history
		// never grows past a single, most-recent entry: wait for that entry
		// to reflect this iteration's write instead of for a growing count.
		waitFor(t, 3*time.Second, func() bool {
			entries := e.History("churn.txt")
			return len(entries) == 1 && entries[0].Checksum != prevChecksum
		})
		prevChecksum = e.History("churn.txt")[0].Checksum
	}

	// Trimming already removed the blobs of the entries max_history=1
	// dropped, so plant a blob no entry references for Clean to sweep.
	orphan, err := e.store.Put([]byte("orphan\n"))
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Clean()
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if result.FilesRemoved == 0 || e.store.Exists(orphan) {
		t.Fatalf("expected clean to sweep the unreferenced blob, got %+v", result)
	}
}
