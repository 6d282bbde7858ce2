package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Fuabioo/json-merger/internal/pathutil"
)

// DefaultIndent is the number of spaces used for merged output.
const DefaultIndent = 2

// DefaultRetention is how long merge history is kept when unset.
const DefaultRetention = 30 * 24 * time.Hour

// Config is the top-level json-merger configuration.
type Config struct {
	Indent  int          `yaml:"indent,omitempty"`  // default: 2
	Suggest bool         `yaml:"suggest,omitempty"` // print a repair hint on parse errors
	Store   *StoreConfig `yaml:"store,omitempty"`
}

// StoreConfig controls the local input and history store.
type StoreConfig struct {
	Disabled  bool   `yaml:"disabled"` // default: false (store enabled)
	DBPath    string `yaml:"db_path,omitempty"`
	Retention string `yaml:"retention,omitempty"` // e.g. "7d", "30d"
}

// EffectiveIndent returns the configured indent width, defaulting to 2.
func (c Config) EffectiveIndent() int {
	if c.Indent <= 0 {
		return DefaultIndent
	}
	return c.Indent
}

// StoreEnabled reports whether the store should be opened.
func (c Config) StoreEnabled() bool {
	return c.Store == nil || !c.Store.Disabled
}

// DBPath returns the configured store path with ~ expanded, or "" when unset.
func (c Config) DBPath() string {
	if c.Store == nil || c.Store.DBPath == "" {
		return ""
	}
	return pathutil.ExpandTilde(c.Store.DBPath)
}

// RetentionDuration returns the configured history retention, defaulting to
// 30 days.
func (c Config) RetentionDuration() (time.Duration, error) {
	if c.Store == nil || c.Store.Retention == "" {
		return DefaultRetention, nil
	}
	d, err := ParseDuration(c.Store.Retention)
	if err != nil {
		return 0, fmt.Errorf("config: store.retention %q: %w", c.Store.Retention, err)
	}
	return d, nil
}

// Load searches for the config file in standard locations and parses it.
// Search order: $JSON_MERGER_CONFIG → $XDG_CONFIG_HOME/json-merger/config.yaml
// → ~/.config/json-merger/config.yaml.
// Returns zero-value Config if no file is found. Returns error if file exists
// but contains invalid YAML.
func Load() (Config, error) {
	path, err := findConfigPath()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return Config{}, nil
	}
	return LoadFrom(path)
}

// LoadFrom parses a config from the given file path.
// Returns error if the file cannot be read, contains invalid YAML or holds
// an invalid value.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Indent < 0 || cfg.Indent > 16 {
		return Config{}, fmt.Errorf("config: %s: indent must be between 0 and 16, got %d", path, cfg.Indent)
	}
	if _, err := cfg.RetentionDuration(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// findConfigPath returns the path to the first config file found,
// or empty string if none exists.
func findConfigPath() (string, error) {
	// 1. Explicit env var.
	if p := os.Getenv("JSON_MERGER_CONFIG"); p != "" {
		p = pathutil.ExpandTilde(p)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("config: $JSON_MERGER_CONFIG points to %s which does not exist", p)
			}
			return "", fmt.Errorf("config: stat %s: %w", p, err)
		}
		return p, nil
	}

	// 2. XDG_CONFIG_HOME, then ~/.config.
	dir := pathutil.ConfigDir()
	if dir == "" {
		return "", nil // Can't determine home, treat as no config.
	}
	p := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	return "", nil
}

// ParseDuration parses a duration string supporting "Nd" (days) and "Nh" (hours) formats,
// in addition to Go's standard time.Duration formats.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Handle "Nd" (days) format.
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid days %q: %w", numStr, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative days %d", n)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}
