package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"time"

	"ftm/internal/engine"
	"ftm/internal/history"
)

// healthResponse mirrors the core's {watch_dir?: string} shape (§6)
// exactly — no status/pid fields, unlike original_source/src/server.rs's
// richer HealthResponse, since those never made it into the distilled
// contract this package implements.
type healthResponse struct {
	WatchDir string `json:"watch_dir,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	e := s.eng
	s.mu.RUnlock()

	resp := healthResponse{}
	if e != nil {
		resp.WatchDir = e.Root()
	}
	writeJSON(w, http.StatusOK, resp)
}

type versionResponse struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Version: s.version})
}

type checkoutRequest struct {
	Directory string `json:"directory"`
}

// handleCheckout mirrors original_source's checkout handler: a second
// checkout while one is already active is rejected outright (409), matching
// AppState's "guard.is_some()" check — a running ftmd only ever watches one
// directory for its whole lifetime.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	if s.eng != nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a directory is already checked out; restart the server to switch")
		return
	}
	s.mu.Unlock()

	e, err := engine.Checkout(req.Directory, s.log)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	if err := e.Start(); err != nil {
		e.Stop()
		writeEngineErr(w, err)
		return
	}

	s.mu.Lock()
	s.eng = e
	s.mu.Unlock()
	s.checker.SetReady(true)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Watching " + req.Directory})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	writeJSON(w, http.StatusOK, e.Files(includeDeleted))
}

// wireEntry is the slimmer history.Entry DTO the HTTP layer serializes:
// mtime_nanos is an internal fast-skip detail and never crosses the wire.
type wireEntry struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	Op        string    `json:"op"`
	Checksum  string    `json:"checksum,omitempty"`
	Size      *int64    `json:"size,omitempty"`
}

func toWireEntries(entries []history.Entry) []wireEntry {
	out := make([]wireEntry, len(entries))
	for i, e := range entries {
		out[i] = wireEntry{
			Timestamp: e.Timestamp,
			File:      e.File,
			Op:        string(e.Op),
			Checksum:  e.Checksum,
			Size:      e.Size,
		}
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, http.StatusBadRequest, "file query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, toWireEntries(e.History(file)))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	since, err := parseTimeParam(q.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter: "+err.Error())
		return
	}
	until, err := parseTimeParam(q.Get("until"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid until parameter: "+err.Error())
		return
	}
	includeDeleted := q.Get("include_deleted") == "true"
	writeJSON(w, http.StatusOK, toWireEntries(e.Activity(since, until, includeDeleted)))
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	to := q.Get("to")
	if to == "" {
		writeError(w, http.StatusBadRequest, "to query parameter is required")
		return
	}
	result, err := e.Diff(q.Get("from"), to)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	checksum := r.URL.Query().Get("checksum")
	if checksum == "" {
		writeError(w, http.StatusBadRequest, "checksum query parameter is required")
		return
	}
	data, err := e.Snapshot(checksum)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	result, err := e.Scan()
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cleanResponse struct {
	EntriesTrimmed int   `json:"entries_trimmed"`
	BytesFreedTrim int64 `json:"bytes_freed_trim"`
	FilesRemoved   int   `json:"files_removed"`
	BytesRemoved   int64 `json:"bytes_removed"`
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	result, err := e.Clean()
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanResponse{
		EntriesTrimmed: result.EntriesTrimmed,
		BytesFreedTrim: result.BytesFreedTrim,
		FilesRemoved:   result.FilesRemoved,
		BytesRemoved:   result.BytesRemoved,
	})
}

type restoreRequest struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.File == "" || req.Checksum == "" {
		writeError(w, http.StatusBadRequest, "file and checksum are required")
		return
	}
	if err := e.Restore(req.File, req.Checksum); err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Restored " + req.File})
}

type statsResponse struct {
	History    int   `json:"history"`
	MaxHistory int   `json:"max_history"`
	Quota      int64 `json:"quota"`
	MaxQuota   int64 `json:"max_quota"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	st := e.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		History:    st.History,
		MaxHistory: st.MaxHistory,
		Quota:      st.Quota,
		MaxQuota:   st.MaxQuota,
	})
}

type configResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	v, err := e.ConfigGet(key)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Key: key, Value: v})
}

type configSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	var req configSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := e.ConfigSet(req.Key, req.Value); err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Set " + req.Key + " = " + req.Value})
}

type logFileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type logsResponse struct {
	LogDir string        `json:"log_dir"`
	Files  []logFileInfo `json:"files"`
}

// handleLogs lists .ftm/logs (plural), deliberately departing from
// original_source/src/server.rs's logs_handler, which reads .ftm/log
// (singular) — this repo's own config.EnsureDirectories and the logging
// package both already standardized on the plural form, so logs_handler's
// directory name follows them rather than the original.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineOrErr(w)
	if !ok {
		return
	}
	dir := e.LogDir()
	entries, err := readLogDir(dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{LogDir: dir, Files: entries})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Shutting down"})
	s.once.Do(func() { close(s.shutdown) })
}

// readLogDir lists every regular entry in dir (subdirectories skipped),
// sorted by name descending. With the rotator's names (ftmd.log plus
// ftmd-YYYYMMDD-HHMMSS.log[.gz] backups) that puts the active file first and
// the backups newest first, without needing each file's mtime.
func readLogDir(dir string) ([]logFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []logFileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, logFileInfo{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}
