// Package httpapi implements the JSON HTTP surface (§6) in front of a
// single *engine.Engine: one watched directory per running ftmd process,
// exactly as original_source/src/server.rs's AppState wraps one optional
// WatchContext behind an RWMutex. Unlike server.rs's Axum router, the
// handlers here are built directly on net/http, following the JSON
// HandlerFunc idiom witnessd's internal/health package already uses for its
// own liveness/readiness/health endpoints (Content-Type header, explicit
// WriteHeader, json.NewEncoder(w).Encode).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"ftm/internal/engine"
	"ftm/internal/ftmerr"
	"ftm/internal/health"
)

// Server is the JSON HTTP front end for at most one checked-out Engine at a
// time. A fresh Server has no Engine; /api/checkout installs one, and every
// handler that needs the Engine fails with 400 until that happens.
type Server struct {
	mu  sync.RWMutex
	eng *engine.Engine

	log      *slog.Logger
	version  string
	mux      *http.ServeMux
	shutdown chan struct{}
	once     sync.Once
	checker  *health.Checker
}

// New builds a Server with its route table wired, ready to be handed to an
// http.Server as its Handler. Alongside the core §6 routes it mounts
// /healthz, backed by internal/health's probe registry — an ops endpoint
// the distilled spec never names but that every long-running daemon in the
// retrieval pack carries.
func New(version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:      log,
		version:  version,
		mux:      http.NewServeMux(),
		shutdown: make(chan struct{}),
		checker:  health.NewChecker(),
	}
	s.registerChecks()
	s.routes()
	return s
}

// registerChecks wires the two components ftmd actually has something to
// say about: whether a directory is checked out, and free space under it.
func (s *Server) registerChecks() {
	s.checker.RegisterFunc("watched_directory", true, func(ctx context.Context) health.CheckResult {
		if s.Engine() == nil {
			return health.CheckResult{Status: health.StatusDegraded, Message: "no directory checked out yet"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: s.Engine().Root()}
	})
	s.checker.RegisterFunc("disk_space", false, func(ctx context.Context) health.CheckResult {
		e := s.Engine()
		if e == nil {
			return health.CheckResult{Status: health.StatusHealthy, Message: "skipped: no directory checked out yet"}
		}
		return health.DiskSpaceCheck(e.Root(), 10*1024*1024)(ctx)
	})
}

// ServeHTTP makes Server itself an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ShutdownRequested is closed once a client has called POST /api/shutdown.
// cmd/ftmd's main loop selects on it alongside OS signals.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdown }

// Engine returns the currently checked-out engine, if any. Used by cmd/ftmd
// to stop the engine cleanly during its own shutdown sequence.
func (s *Server) Engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", s.checker.Handler())
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/version", s.handleVersion)
	s.mux.HandleFunc("POST /api/checkout", s.handleCheckout)
	s.mux.HandleFunc("GET /api/files", s.handleFiles)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/activity", s.handleActivity)
	s.mux.HandleFunc("GET /api/diff", s.handleDiff)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("POST /api/scan", s.handleScan)
	s.mux.HandleFunc("POST /api/clean", s.handleClean)
	s.mux.HandleFunc("POST /api/restore", s.handleRestore)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/config", s.handleConfigGet)
	s.mux.HandleFunc("POST /api/config", s.handleConfigSet)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("POST /api/shutdown", s.handleShutdown)
}

// engineOrErr fetches the checked-out engine, writing the "not checked out"
// 400 original_source's not_checked_out() returns when it's absent.
func (s *Server) engineOrErr(w http.ResponseWriter) (*engine.Engine, bool) {
	s.mu.RLock()
	e := s.eng
	s.mu.RUnlock()
	if e == nil {
		writeError(w, http.StatusBadRequest, "no directory checked out")
		return nil, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeEngineErr maps an error returned from the engine to an HTTP status
// via its ftmerr.Kind, per §7.
func writeEngineErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := ftmerr.As(err); ok {
		status = statusForKind(kind)
	}
	writeError(w, status, err.Error())
}

func statusForKind(kind ftmerr.Kind) int {
	switch kind {
	case ftmerr.KindNotFound:
		return http.StatusNotFound
	case ftmerr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case ftmerr.KindPatternRejected, ftmerr.KindInvalidConfig:
		return http.StatusBadRequest
	case ftmerr.KindBusy, ftmerr.KindAmbiguousCheck:
		return http.StatusConflict
	default: // KindQuotaExhausted, KindCorrupt, KindIO and anything unrecognized
		return http.StatusInternalServerError
	}
}

type messageResponse struct {
	Message string `json:"message"`
}
