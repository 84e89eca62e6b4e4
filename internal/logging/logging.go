// Package logging provides structured logging with slog for ftmd.
//
// Grounded on witnessd's internal/logging.Logger: the same
// Config/New/Default shape, slog.Handler selection (text/JSON), sensitive-key
// redaction, and request-ID context plumbing, adapted from witnessd's
// platform-specific global log directory (~/Library/Logs/witnessd,
// %LOCALAPPDATA%/witnessd, $XDG_STATE_HOME/witnessd) to ftmd's convention of
// an explicit --log-dir rooted at the watched directory's .ftm/logs (per
// original_source/src/main.rs's `ftmd --log-dir <dir>/.ftm/logs serve`).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	Level     Level
	Format    Format
	Output    string // "stdout", "stderr", "file", or "both"
	FilePath  string

	MaxSize    int64 // megabytes before rotation
	MaxAge     int   // days before deletion
	MaxBackups int
	Compress   bool

	AddSource      bool
	RedactPatterns []string
	Component      string
}

// DefaultConfig returns ftmd's default logging configuration, writing to
// logDir/ftmd.log (logDir is typically <watched-dir>/.ftm/logs). An empty
// logDir falls back to stderr-only output, which is what Default() uses.
func DefaultConfig(logDir string) *Config {
	cfg := &Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Output:     "stderr",
		MaxSize:    100,
		MaxAge:     30,
		MaxBackups: 5,
		Compress:   true,
		Component:  "ftmd",
	}
	if logDir != "" {
		cfg.Output = "both"
		cfg.FilePath = filepath.Join(logDir, "ftmd.log")
	}
	return cfg
}

// Logger wraps slog.Logger with rotation and request-ID support.
type Logger struct {
	*slog.Logger
	config    *Config
	writers   []io.Writer
	rotator   *FileRotator
	mu        sync.RWMutex
	requestID atomic.Uint64
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// Default returns the default global logger (stderr-only, no log-dir).
func Default() *Logger {
	loggerOnce.Do(func() {
		var err error
		defaultLogger, err = New(DefaultConfig(""))
		if err != nil {
			defaultLogger = &Logger{Logger: slog.Default(), config: DefaultConfig("")}
		}
	})
	return defaultLogger
}

// SetDefault installs l as the default global logger.
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// New creates a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig("")
	}

	l := &Logger{config: cfg, writers: make([]io.Writer, 0)}
	if err := l.setupWriters(); err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	var w io.Writer
	if len(l.writers) == 1 {
		w = l.writers[0]
	} else {
		w = io.MultiWriter(l.writers...)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

func (l *Logger) setupWriters() error {
	switch strings.ToLower(l.config.Output) {
	case "stdout":
		l.writers = append(l.writers, os.Stdout)
	case "file":
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return err
		}
		l.rotator = rotator
		l.writers = append(l.writers, rotator)
	case "both":
		l.writers = append(l.writers, os.Stderr)
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return err
		}
		l.rotator = rotator
		l.writers = append(l.writers, rotator)
	default:
		l.writers = append(l.writers, os.Stderr)
	}
	return nil
}

func shouldRedact(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "token", "key", "credential",
		"private", "auth", "session", "cookie", "api_key",
		"apikey", "access_token", "refresh_token", "bearer",
	}
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// WithRequestID returns a logger tagged with a request ID.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", id)), config: l.config, writers: l.writers, rotator: l.rotator}
}

// NewRequestID generates a unique request ID.
func (l *Logger) NewRequestID() string {
	id := l.requestID.Add(1)
	return fmt.Sprintf("%s-%d-%d", l.config.Component, time.Now().UnixNano(), id)
}

// WithComponent returns a logger tagged with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name)), config: l.config, writers: l.writers, rotator: l.rotator}
}

// WithContext returns a logger carrying the context's request ID, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return l.WithRequestID(reqID)
	}
	return l
}

// Rotator exposes the logger's underlying FileRotator, if it has one
// (nil for stderr-only loggers, e.g. the one Default() returns).
func (l *Logger) Rotator() *FileRotator {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rotator
}

// Close closes any open log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes buffered log entries to disk.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

type contextKey int

const requestIDKey contextKey = iota

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts a request ID attached by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString renders a log level as its lower-case name.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}
