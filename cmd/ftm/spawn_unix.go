//go:build !windows

package main

import "syscall"

// detachAttr puts the spawned ftmd in its own process group so it keeps
// running after ftm exits and doesn't receive signals sent to ftm's group
// (e.g. a Ctrl-C during `ftm checkout`), mirroring original_source's
// auto_start_server's cmd.process_group(0) on Unix.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
