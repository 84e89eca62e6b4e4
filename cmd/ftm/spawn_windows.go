//go:build windows

package main

import "syscall"

// detachAttr starts the spawned ftmd in a new process group so it doesn't
// receive Ctrl-C events meant for ftm's process group.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
