package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ftm/internal/history"
	"ftm/internal/matcher"
	"ftm/internal/snapstore"
)

func newScanner(t *testing.T) (*Scanner, string, *history.Index) {
	t.Helper()
	root := t.TempDir()
	ftmDir := filepath.Join(root, ".ftm")
	store, err := snapstore.New(filepath.Join(ftmDir, "snapshots"))
	if err != nil {
		t.Fatal(err)
	}
	idx := history.New(filepath.Join(ftmDir, "index.json"), store, history.Limits{MaxHistory: 100, MaxQuota: 1 << 20})
	m := matcher.New([]string{"*.txt"}, []string{"**/.ftm/**"})
	return New(root, m, 1<<20, store, idx, nil), root, idx
}

func TestScanDetectsCreateModifyDelete(t *testing.T) {
	s, root, idx := newScanner(t)
	path := filepath.Join(root, "foo.txt")

	if err := os.WriteFile(path, []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{Created: 1}) {
		t.Fatalf("got %+v, want {Created:1}", res)
	}

	if err := os.WriteFile(path, []byte("ab\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err = s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{Modified: 1}) {
		t.Fatalf("got %+v, want {Modified:1}", res)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	res, err = s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{Deleted: 1}) {
		t.Fatalf("got %+v, want {Deleted:1}", res)
	}

	hist := idx.History("foo.txt")
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
}

func TestScanIdempotent(t *testing.T) {
	s, root, _ := newScanner(t)
	if err := os.WriteFile(filepath.Join(root, "foo.txt"), []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Scan(); err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Fatalf("second scan should be a no-op, got %+v", res)
	}
}

func TestScanTouchWithoutChangeIsNoOp(t *testing.T) {
	s, root, _ := newScanner(t)
	path := filepath.Join(root, "foo.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Scan(); err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Fatalf("touch without content change should be a no-op, got %+v", res)
	}
}
