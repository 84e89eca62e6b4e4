package config

import (
	"os"
	"path/filepath"
	"testing"

	"ftm/internal/ftmerr"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Watch.Patterns) == 0 {
		t.Fatal("expected default patterns")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Settings.MaxHistory = 42

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Settings.MaxHistory != 42 {
		t.Fatalf("expected max_history 42, got %d", reloaded.Settings.MaxHistory)
	}
}

func TestValidateRejectsEmptyPatterns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watch.Patterns = nil
	err := cfg.Validate()
	if kind, ok := ftmerr.As(err); !ok || kind != ftmerr.KindInvalidConfig {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}

func TestValidateRejectsNonPositiveQuota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.MaxQuota = 0
	err := cfg.Validate()
	if kind, ok := ftmerr.As(err); !ok || kind != ftmerr.KindInvalidConfig {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}

func TestGetDottedPath(t *testing.T) {
	cfg := DefaultConfig()
	v, err := cfg.Get("settings.max_history")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 100 {
		t.Fatalf("expected 100, got %v", v)
	}
}

func TestGetUnknownKeyIsNotFound(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Get("settings.does_not_exist")
	if kind, ok := ftmerr.As(err); !ok || kind != ftmerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSetValidValueApplies(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Set("settings.max_history", "200"); err != nil {
		t.Fatal(err)
	}
	if cfg.Settings.MaxHistory != 200 {
		t.Fatalf("expected 200, got %d", cfg.Settings.MaxHistory)
	}
}

func TestSetInvalidValueRollsBack(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Set("settings.max_history", "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if cfg.Settings.MaxHistory != 100 {
		t.Fatalf("expected rollback to default 100, got %d", cfg.Settings.MaxHistory)
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".ftm")
	if err := EnsureDirectories(dir); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"snapshots", "logs"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist as a directory", sub)
		}
	}
}
