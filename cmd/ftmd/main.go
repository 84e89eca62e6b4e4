// ftmd is the background server half of the ftmd/ftm process split: it owns
// exactly one checked-out directory for its entire lifetime and exposes it
// over HTTP. ftm spawns ftmd as a detached child on first checkout and talks
// to it exclusively through internal/httpapi's routes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ftm/internal/httpapi"
	"ftm/internal/logging"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		usage()
		os.Exit(1)
	}

	port := 13580
	logDir := ""
	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--port":
			i++
			if i >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "--port requires a value")
				os.Exit(1)
			}
			p, err := strconv.Atoi(os.Args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --port value: %v\n", err)
				os.Exit(1)
			}
			port = p
		case "--log-dir":
			i++
			if i >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "--log-dir requires a value")
				os.Exit(1)
			}
			logDir = os.Args[i]
		default:
			fmt.Fprintf(os.Stderr, "unrecognized argument: %s\n", os.Args[i])
			usage()
			os.Exit(1)
		}
	}

	log, closeLog, err := setupLogging(logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	srv := httpapi.New(version, log.Logger)
	httpServer := &http.Server{
		Addr:    "127.0.0.1:" + strconv.Itoa(port),
		Handler: srv,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()

	log.Info("ftmd listening", "port", port)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server exited", "error", err)
			os.Exit(1)
		}
	case <-sigCh:
		log.Info("received shutdown signal")
	case <-srv.ShutdownRequested():
		log.Info("shutdown requested via /api/shutdown")
	}

	if e := srv.Engine(); e != nil {
		if err := e.Stop(); err != nil {
			log.Warn("engine stop returned an error", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown did not complete cleanly", "error", err)
	}
}

func setupLogging(logDir string) (*logging.Logger, func(), error) {
	if logDir == "" {
		log := logging.Default()
		return log, func() {}, nil
	}
	cfg := logging.DefaultConfig(logDir)
	log, err := logging.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { log.Close() }, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `ftmd - File Time Machine background server

Usage: ftmd serve [--port N] [--log-dir DIR]

ftmd is started automatically by 'ftm checkout'; it is not meant to be run
directly.`)
}
