// Package config handles ftmd's configuration: defaults, YAML persistence,
// and schema validation.
//
// Grounded on witnessd's internal/config for the overall shape (a
// mutex-guarded Config, DefaultConfig/Load/Save/Validate/EnsureDirectories)
// and on original_source/src/config.rs for the actual schema (watch.patterns,
// watch.exclude, settings.max_history, settings.max_file_size) and its
// serde_yaml persistence, generalized to yaml.v3 and supplemented with the
// quota and interval settings SPEC_FULL.md adds (settings.max_quota,
// settings.scan_interval_sec, settings.clean_interval_sec,
// settings.debounce_min_ms, settings.debounce_max_ms).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"ftm/internal/ftmerr"
)

// Version is the current configuration schema version.
const Version = 1

// WatchConfig holds the glob include/exclude lists fed to the matcher.
type WatchConfig struct {
	Patterns []string `yaml:"patterns" json:"patterns"`
	Exclude  []string `yaml:"exclude" json:"exclude"`
}

// Settings holds the quota controller and scheduler tunables.
type Settings struct {
	MaxHistory       int   `yaml:"max_history" json:"max_history"`
	MaxFileSize      int64 `yaml:"max_file_size" json:"max_file_size"`
	MaxQuota         int64 `yaml:"max_quota" json:"max_quota"`
	ScanIntervalSec  int   `yaml:"scan_interval_sec" json:"scan_interval_sec"`
	CleanIntervalSec int   `yaml:"clean_interval_sec" json:"clean_interval_sec"`
	DebounceMinMs    int   `yaml:"debounce_min_ms" json:"debounce_min_ms"`
	DebounceMaxMs    int   `yaml:"debounce_max_ms" json:"debounce_max_ms"`
}

// Config is ftmd's complete, persisted configuration.
type Config struct {
	Version  int         `yaml:"version" json:"version"`
	Watch    WatchConfig `yaml:"watch" json:"watch"`
	Settings Settings    `yaml:"settings" json:"settings"`

	mu sync.RWMutex `yaml:"-" json:"-"`
}

// DefaultConfig returns the out-of-the-box configuration: the ten
// extension patterns and four exclude globs original_source ships, plus
// this implementation's quota and scheduler defaults (§3).
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Watch: WatchConfig{
			Patterns: []string{
				"*.rs", "*.py", "*.md", "*.txt", "*.json",
				"*.yml", "*.yaml", "*.toml", "*.js", "*.ts",
			},
			Exclude: []string{
				"**/target/**", "**/node_modules/**", "**/.git/**", "**/.ftm/**",
			},
		},
		Settings: Settings{
			MaxHistory:       100,
			MaxFileSize:      10 * 1024 * 1024,
			MaxQuota:         100 * 1024 * 1024,
			ScanIntervalSec:  30,
			CleanIntervalSec: 3600,
			DebounceMinMs:    250,
			DebounceMaxMs:    1000,
		},
	}
}

// Load reads and validates path, a YAML config file. A missing file
// yields DefaultConfig() rather than an error, so a fresh `.ftm` directory
// boots without requiring the caller to have written one first. Either way,
// ApplyEnvOverrides runs last, so FTM_* environment variables win over both
// the file and the built-in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, ftmerr.New(ftmerr.KindIO, "read config", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ftmerr.New(ftmerr.KindInvalidConfig, "config is not valid YAML", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies FTM_*-prefixed environment variable overrides to
// the configuration, following witnessd's internal/config.ApplyEnvOverrides
// (WITNESSD_STORAGE_PATH, WITNESSD_LOG_LEVEL, and friends) with the prefix
// and field set adapted to FTM's own schema.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("FTM_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Settings.MaxHistory = n
		}
	}
	if v := os.Getenv("FTM_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Settings.MaxFileSize = n
		}
	}
	if v := os.Getenv("FTM_MAX_QUOTA"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Settings.MaxQuota = n
		}
	}
	if v := os.Getenv("FTM_SCAN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Settings.ScanIntervalSec = n
		}
	}
	if v := os.Getenv("FTM_CLEAN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Settings.CleanIntervalSec = n
		}
	}
	if v := os.Getenv("FTM_WATCH_PATTERNS"); v != "" {
		c.Watch.Patterns = strings.Split(v, ",")
	}
	if v := os.Getenv("FTM_WATCH_EXCLUDE"); v != "" {
		c.Watch.Exclude = strings.Split(v, ",")
	}
}

// Save persists the config to path via temp-file-plus-rename, matching the
// rest of the daemon's durability idiom rather than original_source's plain
// std::fs::write.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := yaml.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return ftmerr.New(ftmerr.KindIO, "marshal config", err)
	}
	if err := atomicWriteFile(path, data); err != nil {
		return ftmerr.New(ftmerr.KindIO, "persist config", err)
	}
	return nil
}

// EnsureDirectories creates the .ftm working tree (snapshots/, logs/) under
// ftmDir if absent.
func EnsureDirectories(ftmDir string) error {
	for _, sub := range []string{"", "snapshots", "logs"} {
		if err := os.MkdirAll(filepath.Join(ftmDir, sub), 0o755); err != nil {
			return ftmerr.New(ftmerr.KindIO, "create .ftm directory", err)
		}
	}
	return nil
}

// Validate checks structural invariants and, via validateSchema, the JSON
// Schema backing /api/config's InvalidConfig error kind (§7).
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Watch.Patterns) == 0 {
		return ftmerr.New(ftmerr.KindInvalidConfig, "watch.patterns must not be empty", nil)
	}
	if c.Settings.MaxHistory <= 0 {
		return ftmerr.New(ftmerr.KindInvalidConfig, "settings.max_history must be positive", nil)
	}
	if c.Settings.MaxFileSize <= 0 {
		return ftmerr.New(ftmerr.KindInvalidConfig, "settings.max_file_size must be positive", nil)
	}
	if c.Settings.MaxQuota <= 0 {
		return ftmerr.New(ftmerr.KindInvalidConfig, "settings.max_quota must be positive", nil)
	}
	if c.Settings.DebounceMinMs <= 0 || c.Settings.DebounceMaxMs < c.Settings.DebounceMinMs {
		return ftmerr.New(ftmerr.KindInvalidConfig, "settings.debounce_min_ms/max_ms out of order", nil)
	}

	return validateSchema(c)
}

var compiledSchema *jsonschema.Schema

func validateSchema(c *Config) error {
	if compiledSchema == nil {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", bytes.NewReader([]byte(configSchema))); err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "compile config schema", err)
		}
		s, err := compiler.Compile("config.schema.json")
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "compile config schema", err)
		}
		compiledSchema = s
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return ftmerr.New(ftmerr.KindInvalidConfig, "marshal config for validation", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return ftmerr.New(ftmerr.KindInvalidConfig, "unmarshal config for validation", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return ftmerr.New(ftmerr.KindInvalidConfig, "config failed schema validation", err)
	}
	return nil
}

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "watch", "settings"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "watch": {
      "type": "object",
      "required": ["patterns", "exclude"],
      "properties": {
        "patterns": {"type": "array", "items": {"type": "string"}, "minItems": 1},
        "exclude": {"type": "array", "items": {"type": "string"}}
      }
    },
    "settings": {
      "type": "object",
      "required": ["max_history", "max_file_size", "max_quota"],
      "properties": {
        "max_history": {"type": "integer", "minimum": 1},
        "max_file_size": {"type": "integer", "minimum": 1},
        "max_quota": {"type": "integer", "minimum": 1},
        "scan_interval_sec": {"type": "integer", "minimum": 0},
        "clean_interval_sec": {"type": "integer", "minimum": 0},
        "debounce_min_ms": {"type": "integer", "minimum": 1},
        "debounce_max_ms": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

// Get resolves a dotted path (e.g. "settings.max_history") for GET
// /api/config, returning its JSON-encoded value.
func (c *Config) Get(dotted string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, err := json.Marshal(c)
	if err != nil {
		return nil, ftmerr.New(ftmerr.KindIO, "marshal config", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, ftmerr.New(ftmerr.KindIO, "unmarshal config", err)
	}

	cur := any(tree)
	if dotted == "" {
		return cur, nil
	}
	for _, seg := range splitDotted(dotted) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, ftmerr.New(ftmerr.KindNotFound, fmt.Sprintf("config key %q not found", dotted), nil)
		}
		v, ok := m[seg]
		if !ok {
			return nil, ftmerr.New(ftmerr.KindNotFound, fmt.Sprintf("config key %q not found", dotted), nil)
		}
		cur = v
	}
	return cur, nil
}

// Set applies a dotted-path key/value update (e.g. "settings.max_history",
// "200") for POST /api/config, validating before committing.
func (c *Config) Set(dotted, value string) error {
	c.mu.Lock()
	beforeWatch, beforeSettings, beforeVersion := c.Watch, c.Settings, c.Version
	c.mu.Unlock()

	if err := c.setLocked(dotted, value); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		c.mu.Lock()
		c.Watch, c.Settings, c.Version = beforeWatch, beforeSettings, beforeVersion
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Config) setLocked(dotted, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch dotted {
	case "settings.max_history":
		n, err := strconv.Atoi(value)
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "max_history must be an integer", err)
		}
		c.Settings.MaxHistory = n
	case "settings.max_file_size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "max_file_size must be an integer", err)
		}
		c.Settings.MaxFileSize = n
	case "settings.max_quota":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "max_quota must be an integer", err)
		}
		c.Settings.MaxQuota = n
	case "settings.scan_interval_sec":
		n, err := strconv.Atoi(value)
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "scan_interval_sec must be an integer", err)
		}
		c.Settings.ScanIntervalSec = n
	case "settings.clean_interval_sec":
		n, err := strconv.Atoi(value)
		if err != nil {
			return ftmerr.New(ftmerr.KindInvalidConfig, "clean_interval_sec must be an integer", err)
		}
		c.Settings.CleanIntervalSec = n
	default:
		return ftmerr.New(ftmerr.KindInvalidConfig, fmt.Sprintf("config key %q is not settable", dotted), nil)
	}
	return nil
}

func splitDotted(dotted string) []string {
	var out []string
	start := 0
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			out = append(out, dotted[start:i])
			start = i + 1
		}
	}
	out = append(out, dotted[start:])
	return out
}

// Snapshot returns a copy of the config safe to read without holding the
// lock (e.g. to build a matcher.Matcher or history.Limits from it).
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{Version: c.Version, Watch: c.Watch, Settings: c.Settings}
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
