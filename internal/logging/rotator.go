// Package logging provides structured logging with slog for ftmd.
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// logNameParts splits a configured log file path into its directory, base
// name (without extension), and extension, the three pieces every rotated
// and compressed filename in this package is built from.
func logNameParts(filePath string) (dir, name, ext string) {
	dir = filepath.Dir(filePath)
	base := filepath.Base(filePath)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	return dir, name, ext
}

// FileRotator backs a *Logger's file output for ftmd's --log-dir, rotating
// ftmd.log by size or at day boundaries into timestamped siblings under the
// same directory (optionally gzip-compressed), and pruning them by count and
// age — the files GET /api/logs lists.
type FileRotator struct {
	config   *Config
	mu       sync.Mutex
	file     *os.File
	size     int64
	lastTime time.Time
}

// NewFileRotator creates a new FileRotator.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		config: cfg,
	}

	if err := r.ensureDir(); err != nil {
		return nil, err
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

// ensureDir creates the log directory if it doesn't exist.
func (r *FileRotator) ensureDir() error {
	dir := filepath.Dir(r.config.FilePath)
	return os.MkdirAll(dir, 0750)
}

// openFile opens or creates the log file.
func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.lastTime = time.Now()

	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	// Check if rotation is needed
	if r.shouldRotate(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// shouldRotate checks if the log file should be rotated.
func (r *FileRotator) shouldRotate(writeSize int64) bool {
	// Size-based rotation
	maxBytes := r.config.MaxSize * 1024 * 1024
	if r.size+writeSize > maxBytes {
		return true
	}

	// Time-based rotation (daily)
	now := time.Now()
	if r.lastTime.Day() != now.Day() {
		return true
	}

	return false
}

// rotate performs the log rotation.
func (r *FileRotator) rotate() error {
	// Close current file
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
	}

	// Generate rotated filename with timestamp
	timestamp := time.Now().Format("20060102-150405")
	dir, name, ext := logNameParts(r.config.FilePath)

	rotatedName := fmt.Sprintf("%s-%s%s", name, timestamp, ext)
	rotatedPath := filepath.Join(dir, rotatedName)

	// Rename current file
	if err := os.Rename(r.config.FilePath, rotatedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	// Compress if enabled
	if r.config.Compress {
		go r.compressFile(rotatedPath)
	}

	// Open new file
	if err := r.openFile(); err != nil {
		return err
	}

	// Clean up old files
	go r.cleanup()

	return nil
}

// compressFile compresses a log file with gzip.
func (r *FileRotator) compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}

	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}

	// Remove original after successful compression
	os.Remove(path)
}

// cleanup removes old log files based on retention policy.
func (r *FileRotator) cleanup() {
	dir, name, ext := logNameParts(r.config.FilePath)

	// Find all rotated log files
	pattern := filepath.Join(dir, name+"-*"+ext+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	// Sort by modification time (oldest first)
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(matches))

	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: match, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	// Remove files exceeding max backups
	if len(files) > r.config.MaxBackups {
		for i := 0; i < len(files)-r.config.MaxBackups; i++ {
			os.Remove(files[i].path)
		}
	}

	// Remove files older than max age
	cutoff := time.Now().AddDate(0, 0, -r.config.MaxAge)
	for _, f := range files {
		if f.modTime.Before(cutoff) {
			os.Remove(f.path)
		}
	}
}

// Close closes the rotator and its underlying file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes any buffered data to the file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// LogFileInfo describes one file under a rotator's log directory, the same
// shape GET /api/logs reports for each entry.
type LogFileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListLogFiles reports the active log file plus every rotated (and possibly
// gzip-compressed) sibling it has produced, newest first.
func (r *FileRotator) ListLogFiles() ([]LogFileInfo, error) {
	dir, name, ext := logNameParts(r.config.FilePath)

	paths := []string{r.config.FilePath}
	pattern := filepath.Join(dir, name+"-*"+ext+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	paths = append(paths, matches...)

	out := make([]LogFileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		out = append(out, LogFileInfo{Name: filepath.Base(p), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}
