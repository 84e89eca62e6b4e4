//go:build windows

package engine

import (
	"fmt"
	"os"
)

// instanceLock is a single-instance advisory lock on the .ftm directory.
// Windows has no flock equivalent wired through golang.org/x/sys here, so
// this falls back to O_EXCL-style exclusive creation of the lock file
// itself: the file is held open for the engine's lifetime and removed on
// release, which is sufficient to detect a second ftmd process on the same
// machine racing to check out the same directory.
type instanceLock struct {
	f    *os.File
	path string
}

func acquireInstanceLock(path string) (*instanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("lock file already held: %w", err)
	}
	return &instanceLock{f: f, path: path}, nil
}

func (l *instanceLock) release() {
	if l == nil || l.f == nil {
		return
	}
	l.f.Close()
	os.Remove(l.path)
}
