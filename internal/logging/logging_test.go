package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStderrLogger(t *testing.T) {
	l, err := New(DefaultConfig(""))
	if err != nil {
		t.Fatal(err)
	}
	if l.Logger == nil {
		t.Fatal("expected a non-nil slog.Logger")
	}
}

func TestNewFileLoggerWritesToRotator(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	l, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Info("hello", "k", "v")
	if err := l.Sync(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ftmd.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("hello")) {
		t.Errorf("expected log file to contain the message, got %q", data)
	}
}

func TestRotatorListLogFilesIncludesActiveFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Info("hello")
	if err := l.Sync(); err != nil {
		t.Fatal(err)
	}

	files, err := l.Rotator().ListLogFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "ftmd.log" {
		t.Fatalf("expected exactly [ftmd.log], got %+v", files)
	}
	if files[0].Size == 0 {
		t.Error("expected a non-zero size for a log file with content")
	}
}

func TestShouldRedactSensitiveKeys(t *testing.T) {
	cases := map[string]bool{
		"api_key":  true,
		"password": true,
		"file":     false,
		"checksum": false,
	}
	for key, want := range cases {
		if got := shouldRedact(key); got != want {
			t.Errorf("shouldRedact(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		lvl, err := ParseLevel(s)
		if err != nil {
			t.Fatal(err)
		}
		if LevelString(lvl) != s {
			t.Errorf("ParseLevel/LevelString round trip failed for %q", s)
		}
	}
}

func TestParseLevelUnknown(t *testing.T) {
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("got %q, want req-1", got)
	}
}
