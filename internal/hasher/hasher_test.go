package hasher

import (
	"os"
	"path/filepath"
	"testing"

	"ftm/internal/ftmerr"
)

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	r1, err := HashFile(path, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Size != 2 {
		t.Errorf("size = %d, want 2", r1.Size)
	}
	if r1.Checksum != Checksum([]byte("a\n")) {
		t.Errorf("checksum mismatch")
	}

	r2, err := HashFile(path, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Checksum != r2.Checksum {
		t.Error("expected stable checksum across reads")
	}
}

func TestHashFileTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := HashFile(path, 4)
	if !ftmerrIs(err, ftmerr.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestHashFileNotFound(t *testing.T) {
	_, err := HashFile("/nonexistent/path/file.txt", 1024)
	if !ftmerrIs(err, ftmerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func ftmerrIs(err, target error) bool {
	kind, ok := ftmerr.As(err)
	if !ok {
		return false
	}
	wantKind, _ := ftmerr.As(target)
	return kind == wantKind
}
