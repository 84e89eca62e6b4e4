//go:build !windows

package engine

import (
	"os"

	"golang.org/x/sys/unix"
)

// instanceLock is a single-instance advisory lock on the .ftm directory,
// preventing two ftmd processes from checking out the same watched
// directory concurrently.
type instanceLock struct {
	f *os.File
}

// acquireInstanceLock takes an exclusive, non-blocking flock on path,
// creating it if absent. The lock is released by the process exiting or by
// calling release, whichever comes first.
func acquireInstanceLock(path string) (*instanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return &instanceLock{f: f}, nil
}

func (l *instanceLock) release() {
	if l == nil || l.f == nil {
		return
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}
