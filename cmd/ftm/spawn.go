package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

func ftmdName() string {
	if runtime.GOOS == "windows" {
		return "ftmd.exe"
	}
	return "ftmd"
}

// spawnServer starts a detached ftmd listening on port with logs rooted at
// logDir, grounded on original_source/src/main.rs's auto_start_server: find
// the sibling binary, redirect its stdio to null, and let it outlive this
// process.
func spawnServer(port int, logDir string) error {
	exe, err := ftmdPath()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "serve", "--port", strconv.Itoa(port), "--log-dir", logDir)
	cmd.Stdin = nil
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn ftmd: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Starting ftmd on port %d (pid %d)...\n", port, cmd.Process.Pid)
	return cmd.Process.Release()
}

// ftmdPath looks for the ftmd binary next to the running ftm executable
// first, falling back to PATH.
func ftmdPath() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), ftmdName())
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return exec.LookPath(ftmdName())
}
