// ftm is the command-line client half of the ftmd/ftm process split. It
// never touches the watched directory directly: every subcommand is a thin
// wrapper around internal/client's HTTP calls to a running (or
// auto-spawned) ftmd.
//
// The dispatch shape — a single global flag set, flag.Parse, then a switch
// over flag.Arg(0) — follows witnessctl's cmd/witnessctl/main.go rather than
// a CLI framework: nothing in the retrieval pack reaches for one over plain
// flag+switch for a small, flat command surface like this one.
package main

import (
	"flag"
	"fmt"
	"os"
)

var port = flag.Int("port", 13580, "ftmd port (used by serve and all client commands)")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "checkout":
		err = cmdCheckout(args)
	case "ls":
		err = cmdLs(args)
	case "history":
		err = cmdHistory(args)
	case "restore":
		err = cmdRestore(args)
	case "scan":
		err = cmdScan(args)
	case "clean":
		err = cmdClean(args)
	case "config":
		err = cmdConfig(args)
	case "stats":
		err = cmdStats(args)
	case "version":
		err = cmdVersion(args)
	case "logs":
		err = cmdLogs(args)
	case "stop":
		err = cmdStop(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ftm - File Time Machine

Usage: ftm [--port N] <command> [args]

Commands:
  checkout <dir>              Initialize .ftm in dir and start watching it
  ls [--include-deleted]      List tracked files
  history <file>              Show version history for a file
  restore <file> <checksum>   Restore a file to a version (checksum prefix, >=8 chars)
  scan                        Reconcile on-disk reality against tracked history
  clean                       Remove snapshot blobs no longer referenced by history
  config get [key]            Print a config value (all if no key given)
  config set <key> <value>    Set a config value
  stats                       Show history and quota usage
  version                     Print client and server version
  logs                        List ftmd's log files
  stop                        Stop the running ftmd gracefully
  help                        Show this help message

Options:
  -port N   ftmd port (default 13580)`)
}
