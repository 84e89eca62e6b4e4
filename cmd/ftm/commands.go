package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"ftm/internal/client"
	"ftm/internal/history"
)

func newClient() *client.Client { return client.New(*port) }

// cmdCheckout mirrors original_source/src/main.rs's Checkout handler: if no
// ftmd answers on this port, spawn one rooted at dir's .ftm/logs before
// calling /api/checkout.
func cmdCheckout(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ftm checkout <dir>")
	}
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	c := newClient()
	if !c.IsRunning() {
		logDir := filepath.Join(dir, ".ftm", "logs")
		if err := spawnServer(*port, logDir); err != nil {
			return fmt.Errorf("failed to start ftmd: %w", err)
		}
		if !c.WaitHealthy(10 * time.Second) {
			return fmt.Errorf("timed out waiting for ftmd to become healthy on port %d", *port)
		}
	}

	msg, err := c.Checkout(dir)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func cmdLs(args []string) error {
	includeDeleted := false
	for _, a := range args {
		if a == "--include-deleted" {
			includeDeleted = true
		}
	}
	nodes, err := newClient().Files(includeDeleted)
	if err != nil {
		return err
	}
	var lines []string
	for _, n := range nodes {
		collectFiles(n, "", &lines)
	}
	if len(lines) == 0 {
		fmt.Println("No files tracked yet.")
		return nil
	}
	fmt.Println("Tracked files:")
	for _, l := range lines {
		fmt.Println("  " + l)
	}
	return nil
}

// collectFiles flattens the path-segment tree GET /api/files returns back
// into path (count) lines, matching client.rs's flat FileEntry display.
func collectFiles(node *history.FileNode, prefix string, out *[]string) {
	path := node.Name
	if prefix != "" {
		path = prefix + "/" + node.Name
	}
	if node.Count != nil {
		*out = append(*out, fmt.Sprintf("%s (%d entries)", path, *node.Count))
	}
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		collectFiles(node.Children[name], path, out)
	}
}

func cmdHistory(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ftm history <file>")
	}
	file := args[0]
	entries, err := newClient().History(file)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No history for '%s'\n", file)
		return nil
	}
	fmt.Printf("History for '%s':\n", file)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		checksumShort := "-"
		if len(e.Checksum) >= 8 {
			checksumShort = e.Checksum[:8]
		}
		sizeStr := "-"
		if e.Size != nil {
			sizeStr = fmt.Sprintf("%d bytes", *e.Size)
		}
		fmt.Printf("  %s | %s | %s | %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Op, checksumShort, sizeStr)
	}
	return nil
}

func cmdRestore(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ftm restore <file> <checksum>")
	}
	msg, err := newClient().Restore(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func cmdScan(args []string) error {
	r, err := newClient().Scan()
	if err != nil {
		return err
	}
	fmt.Printf("Scan complete: %d created, %d modified, %d deleted\n", r.Created, r.Modified, r.Deleted)
	return nil
}

func cmdClean(args []string) error {
	r, err := newClient().Clean()
	if err != nil {
		return err
	}
	fmt.Printf("Clean complete: %d entries trimmed, %d files removed, %d bytes freed\n",
		r.EntriesTrimmed, r.FilesRemoved, r.BytesFreedTrim+r.BytesRemoved)
	return nil
}

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ftm config get [key] | ftm config set <key> <value>")
	}
	c := newClient()
	switch args[0] {
	case "get":
		key := ""
		if len(args) >= 2 {
			key = args[1]
		}
		v, err := c.ConfigGet(key)
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", v)
		return nil
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: ftm config set <key> <value>")
		}
		msg, err := c.ConfigSet(args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	default:
		return fmt.Errorf("unknown config action: %s", args[0])
	}
}

func cmdStats(args []string) error {
	s, err := newClient().Stats()
	if err != nil {
		return err
	}
	fmt.Printf("History: %d / %d\n", s.History, s.MaxHistory)
	fmt.Printf("Quota:   %d / %d bytes\n", s.Quota, s.MaxQuota)
	return nil
}

func cmdVersion(args []string) error {
	fmt.Println("ftm client", clientVersion)
	v, err := newClient().Version()
	if err != nil {
		fmt.Println("ftmd server: not running")
		return nil
	}
	fmt.Println("ftmd server", v)
	return nil
}

func cmdLogs(args []string) error {
	r, err := newClient().Logs()
	if err != nil {
		return err
	}
	if len(r.Files) == 0 {
		fmt.Printf("No log files in %s\n", r.LogDir)
		return nil
	}
	fmt.Printf("Logs in %s:\n", r.LogDir)
	for _, f := range r.Files {
		fmt.Printf("  %s (%d bytes, %s)\n", f.Name, f.Size, f.Modified.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func cmdStop(args []string) error {
	c := newClient()
	if !c.IsRunning() {
		fmt.Printf("Server is not running on port %d.\n", *port)
		return nil
	}
	if err := c.Shutdown(); err != nil {
		return err
	}
	if c.WaitStopped(5 * time.Second) {
		fmt.Println("Server stopped.")
		return nil
	}
	return fmt.Errorf("server did not stop within 5 seconds")
}

const clientVersion = "0.1.0"
