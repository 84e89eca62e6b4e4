// Package logging provides structured logging with slog for ftmd.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport captures process state at the moment of a recovered panic.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	BuildInfo    *debug.BuildInfo  `json:"build_info,omitempty"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumCPU       int               `json:"num_cpu"`
	NumGoroutine int               `json:"num_goroutine"`
	MemStats     *runtime.MemStats `json:"mem_stats,omitempty"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Component    string            `json:"component,omitempty"`
	Context      map[string]any    `json:"context,omitempty"`
}

// CrashHandler recovers panics in the functions and goroutines it wraps
// (Recover, RecoverWithContext, RecoverGoroutine) so the panic does not take
// down the process, and records what happened to crashDir for later
// inspection.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures a CrashHandler.
type CrashHandlerConfig struct {
	CrashDir  string // typically <watched-dir>/.ftm/logs/crashes
	Version   string
	Component string
	OnCrash   func(CrashReport)
}

// NewCrashHandler creates a CrashHandler, creating CrashDir if needed.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	if cfg.Component == "" {
		cfg.Component = "ftmd"
	}
	if cfg.CrashDir != "" {
		os.MkdirAll(cfg.CrashDir, 0o750)
	}
	return &CrashHandler{crashDir: cfg.CrashDir, version: cfg.Version, component: cfg.Component, onCrash: cfg.OnCrash}
}

// SetVersion sets the application version recorded in future crash reports.
func (h *CrashHandler) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

// RecoverWithContext wraps fn with panic recovery, attaching contextInfo to
// any resulting crash report.
func (h *CrashHandler) RecoverWithContext(contextInfo map[string]any, fn func()) {
	defer h.recover(contextInfo)
	fn()
}

// Recover wraps fn with panic recovery.
func (h *CrashHandler) Recover(fn func()) {
	defer h.recover(nil)
	fn()
}

// RecoverGoroutine is meant to be deferred at the top of a background
// goroutine: `go func() { defer crashHandler.RecoverGoroutine(); ... }()`.
func (h *CrashHandler) RecoverGoroutine() {
	if r := recover(); r != nil {
		h.HandlePanic(r, map[string]any{"type": "goroutine"})
	}
}

func (h *CrashHandler) recover(contextInfo map[string]any) {
	if r := recover(); r != nil {
		h.HandlePanic(r, contextInfo)
	}
}

// HandlePanic builds and records a CrashReport for a recovered panic value.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      contextInfo,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		report.BuildInfo = bi
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	report.MemStats = &memStats

	if h.crashDir != "" {
		h.writeCrashDump(report)
	}
	if h.onCrash != nil {
		h.onCrash(report)
	}

	fmt.Fprintf(os.Stderr, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(os.Stderr, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(os.Stderr, "Panic: %s\n", report.PanicValue)
	fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", report.StackTrace)
}

func (h *CrashHandler) writeCrashDump(report CrashReport) error {
	filename := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405"))
	path := filepath.Join(h.crashDir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crash report: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// GetCrashReports lists previously recorded crash reports.
func (h *CrashHandler) GetCrashReports() ([]CrashReport, error) {
	if h.crashDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	if h.crashDir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
