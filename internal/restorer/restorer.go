// Package restorer implements the restorer (C9): materializing a stored
// snapshot back to its file path via an atomic write.
//
// Grounded on original_source/src/storage.rs's restore (fetch blob, write
// back, re-verify), adapted to use snapstore.AtomicWriteFile's
// temp-file-plus-rename-plus-fsync idiom (the original performs a
// non-atomic std::fs::write) per §4.9's explicit durability requirement.
package restorer

import (
	"os"
	"path/filepath"

	"ftm/internal/ftmerr"
	"ftm/internal/hasher"
	"ftm/internal/snapstore"
)

// Restore fetches the blob for checksum from store and writes it atomically
// to absPath, creating parent directories as needed. It does not mutate the
// history index: the watcher's own debounce settle on this write will
// naturally append the resulting history entry.
func Restore(store *snapstore.Store, absPath, checksum string) error {
	data, err := store.Get(checksum)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return ftmerr.New(ftmerr.KindIO, "create parent directory", err)
	}

	if err := snapstore.AtomicWriteFile(absPath, data, 0o644); err != nil {
		return ftmerr.New(ftmerr.KindIO, "write restored file", err)
	}

	// Defensive re-check: the bytes just written must hash back to the
	// checksum we were asked to restore.
	if hasher.Checksum(data) != checksum {
		return ftmerr.New(ftmerr.KindCorrupt, "restored bytes do not match checksum", nil)
	}
	return nil
}
