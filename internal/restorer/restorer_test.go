package restorer

import (
	"os"
	"path/filepath"
	"testing"

	"ftm/internal/snapstore"
)

func TestRestoreWritesBlobBytes(t *testing.T) {
	dir := t.TempDir()
	store, err := snapstore.New(filepath.Join(dir, "snapshots"))
	if err != nil {
		t.Fatal(err)
	}
	checksum, err := store.Put([]byte("restored content"))
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(dir, "nested", "foo.txt")
	if err := Restore(store, target, checksum); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "restored content" {
		t.Errorf("got %q", data)
	}
}

func TestRestoreIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := snapstore.New(filepath.Join(dir, "snapshots"))
	if err != nil {
		t.Fatal(err)
	}
	checksum, _ := store.Put([]byte("same"))
	target := filepath.Join(dir, "f.txt")

	if err := Restore(store, target, checksum); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(target)
	if err := Restore(store, target, checksum); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(target)
	if string(before) != string(after) {
		t.Error("expected restoring to the current checksum to leave bytes unchanged")
	}
}
