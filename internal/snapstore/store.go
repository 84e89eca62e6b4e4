// Package snapstore implements the content-addressable snapshot store (C2):
// a two-level sharded blob store keyed by SHA-256 checksum, with atomic
// temp-file-plus-rename writes fsynced to disk.
//
// Grounded on original_source/src/storage.rs's snapshot_path/stream_hash_and_save
// (two-hex-char sharding, temp file under a ".tmp" subdirectory, rename into
// place) and on witnessd's internal/checkpoint.Chain.Save for the general
// idiom of atomic JSON/blob persistence in this codebase — adapted here to
// add the fsync-before-rename durability guarantee the specification
// requires and that neither teacher file actually performs.
package snapstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ftm/internal/ftmerr"
)

// Store is a sharded, content-addressable blob store rooted at a
// "snapshots" directory.
type Store struct {
	root string // path to the "snapshots" directory
}

// New returns a Store rooted at root (typically "<watched>/.ftm/snapshots").
// The directory and its .tmp subdirectory are created if absent.
func New(root string) (*Store, error) {
	s := &Store{root: root}
	if err := os.MkdirAll(s.tmpDir(), 0o700); err != nil {
		return nil, ftmerr.New(ftmerr.KindIO, "create snapshot store", err)
	}
	return s, nil
}

func (s *Store) tmpDir() string { return filepath.Join(s.root, ".tmp") }

// Path returns the sharded on-disk path for a checksum: <root>/<c0:2>/<c2:4>/<checksum>.
func (s *Store) Path(checksum string) (string, error) {
	if len(checksum) != 64 {
		return "", ftmerr.New(ftmerr.KindCorrupt, "malformed checksum: "+checksum, nil)
	}
	return filepath.Join(s.root, checksum[0:2], checksum[2:4], checksum), nil
}

// Put computes the SHA-256 of data, writes it atomically to its sharded
// path, and returns the checksum. If the blob already exists, the write is
// skipped (idempotent) and the existing checksum is returned.
func (s *Store) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	dest, err := s.Path(checksum)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(dest); err == nil {
		return checksum, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return "", ftmerr.New(ftmerr.KindIO, "mkdir shard dir", err)
	}

	tmp, err := os.CreateTemp(s.tmpDir(), "put-*")
	if err != nil {
		return "", ftmerr.New(ftmerr.KindIO, "create temp blob", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", ftmerr.New(ftmerr.KindIO, "write temp blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", ftmerr.New(ftmerr.KindIO, "fsync temp blob", err)
	}
	if err := tmp.Close(); err != nil {
		return "", ftmerr.New(ftmerr.KindIO, "close temp blob", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		// Another writer may have raced us to the same content; treat an
		// existing destination as success (store is idempotent).
		if _, statErr := os.Stat(dest); statErr == nil {
			return checksum, nil
		}
		return "", ftmerr.New(ftmerr.KindIO, "rename temp blob into place", err)
	}
	syncDir(filepath.Dir(dest))

	return checksum, nil
}

// Get reads back the blob for checksum.
func (s *Store) Get(checksum string) ([]byte, error) {
	path, err := s.Path(checksum)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftmerr.New(ftmerr.KindNotFound, "snapshot not found: "+checksum, err)
		}
		return nil, ftmerr.New(ftmerr.KindIO, "read snapshot", err)
	}
	return data, nil
}

// Open returns a reader for the blob, for streaming large snapshots (e.g.
// over the /api/snapshot HTTP response) without buffering them fully.
func (s *Store) Open(checksum string) (io.ReadCloser, error) {
	path, err := s.Path(checksum)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftmerr.New(ftmerr.KindNotFound, "snapshot not found: "+checksum, err)
		}
		return nil, ftmerr.New(ftmerr.KindIO, "open snapshot", err)
	}
	return f, nil
}

// Exists reports whether checksum has a stored blob.
func (s *Store) Exists(checksum string) bool {
	path, err := s.Path(checksum)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove unlinks the blob for checksum. A missing blob is not an error.
func (s *Store) Remove(checksum string) error {
	path, err := s.Path(checksum)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ftmerr.New(ftmerr.KindIO, "remove snapshot", err)
	}
	return nil
}

// List scans the two-level shard tree and returns every stored checksum.
func (s *Store) List() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	level0, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, ftmerr.New(ftmerr.KindIO, "list snapshots", err)
	}
	for _, e0 := range level0 {
		if !e0.IsDir() || e0.Name() == ".tmp" {
			continue
		}
		level1, err := os.ReadDir(filepath.Join(s.root, e0.Name()))
		if err != nil {
			continue
		}
		for _, e1 := range level1 {
			if !e1.IsDir() {
				continue
			}
			blobs, err := os.ReadDir(filepath.Join(s.root, e0.Name(), e1.Name()))
			if err != nil {
				continue
			}
			for _, b := range blobs {
				if !b.IsDir() && isSHA256Hex(b.Name()) {
					out[b.Name()] = struct{}{}
				}
			}
		}
	}
	return out, nil
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// syncDir fsyncs a directory so a rename into it is durable on Unix. It is a
// best-effort operation: some filesystems/platforms do not support fsync on
// directories, and a failure here is not propagated as an error.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// AtomicWriteFile writes data to path via a temp-file-plus-rename in the
// same directory, fsyncing both the file and its parent directory. Shared by
// the restorer (C9) and the history index (C3) for their own
// temp-plus-rename persistence requirements.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	syncDir(dir)
	return nil
}
