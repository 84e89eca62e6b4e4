// Package hasher implements the streaming hasher/reader (C5): it reads a
// file in fixed chunks, feeds a running SHA-256, and aborts once the byte
// cap is exceeded.
//
// Grounded on witnessd's internal/watcher.HashFile (io.Copy into a SHA-256
// hash.Hash), generalized here to a bounded, chunked read so oversized files
// never get fully buffered before the cap is detected.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"ftm/internal/ftmerr"
)

const chunkSize = 64 * 1024

// Result is the outcome of hashing a file.
type Result struct {
	Checksum string // lowercase hex SHA-256
	Size     int64
	Bytes    []byte // retained only when Size <= maxFileSize
}

// HashFile streams path through SHA-256, capping at maxFileSize bytes. If
// the file is larger, it returns ftmerr.ErrTooLarge and no Result.
func HashFile(path string, maxFileSize int64) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, ftmerr.New(ftmerr.KindNotFound, "file not found: "+path, err)
		}
		return Result{}, ftmerr.New(ftmerr.KindIO, "open failed: "+path, err)
	}
	defer f.Close()
	return HashReader(f, maxFileSize)
}

// HashReader streams r through SHA-256, capping at maxFileSize bytes and
// retaining the bytes read (for later snapshot storage) only when the
// stream turns out to be within the cap.
func HashReader(r io.Reader, maxFileSize int64) (Result, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	var body []byte
	var total int64

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > maxFileSize {
				return Result{}, ftmerr.ErrTooLarge
			}
			h.Write(buf[:n])
			body = append(body, buf[:n]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, ftmerr.New(ftmerr.KindIO, "read failed", readErr)
		}
	}

	return Result{
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Size:     total,
		Bytes:    body,
	}, nil
}

// Checksum computes the SHA-256 hex digest of bytes without a size cap, used
// where the content is already fully in memory (e.g. verifying a snapshot
// read back from the store).
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
