package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
indent: 4
suggest: true
store:
  db_path: /tmp/merger.db
  retention: 7d
`
	path := writeConfig(t, t.TempDir(), "config.yaml", yaml)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.EffectiveIndent() != 4 {
		t.Errorf("EffectiveIndent() = %d, want 4", cfg.EffectiveIndent())
	}
	if !cfg.Suggest {
		t.Error("Suggest = false, want true")
	}
	if !cfg.StoreEnabled() {
		t.Error("StoreEnabled() = false, want true")
	}
	if cfg.DBPath() != "/tmp/merger.db" {
		t.Errorf("DBPath() = %q, want /tmp/merger.db", cfg.DBPath())
	}
	ret, err := cfg.RetentionDuration()
	if err != nil {
		t.Fatalf("RetentionDuration: %v", err)
	}
	if ret != 7*24*time.Hour {
		t.Errorf("RetentionDuration() = %v, want 168h", ret)
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config

	if cfg.EffectiveIndent() != DefaultIndent {
		t.Errorf("EffectiveIndent() = %d, want %d", cfg.EffectiveIndent(), DefaultIndent)
	}
	if !cfg.StoreEnabled() {
		t.Error("store should be enabled by default")
	}
	if cfg.DBPath() != "" {
		t.Errorf("DBPath() = %q, want empty", cfg.DBPath())
	}
	ret, err := cfg.RetentionDuration()
	if err != nil || ret != DefaultRetention {
		t.Errorf("RetentionDuration() = %v, %v; want %v, nil", ret, err, DefaultRetention)
	}
}

func TestStoreDisabled(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "store:\n  disabled: true\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.StoreEnabled() {
		t.Error("StoreEnabled() = true, want false")
	}
}

func TestDBPathExpandsTilde(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	cfg := Config{Store: &StoreConfig{DBPath: "~/merger/store.db"}}

	if got, want := cfg.DBPath(), "/home/alice/merger/store.db"; got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid yaml", "{{invalid yaml"},
		{"negative indent", "indent: -1\n"},
		{"huge indent", "indent: 99\n"},
		{"bad retention", "store:\n  retention: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tt.body)
			if _, err := LoadFrom(path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	// Point to an empty directory so no config is found.
	t.Setenv("JSON_MERGER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indent != 0 || cfg.Suggest || cfg.Store != nil {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoadFromXDG(t *testing.T) {
	xdg := t.TempDir()
	if err := os.MkdirAll(filepath.Join(xdg, "json-merger"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeConfig(t, filepath.Join(xdg, "json-merger"), "config.yaml", "indent: 3\n")

	t.Setenv("JSON_MERGER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indent != 3 {
		t.Errorf("Indent = %d, want 3", cfg.Indent)
	}
}

func TestLoadFromEnvVar(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "custom.yaml", "suggest: true\n")
	t.Setenv("JSON_MERGER_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Suggest {
		t.Error("Suggest = false, want true")
	}
}

func TestLoadEnvVarMissingFile(t *testing.T) {
	t.Setenv("JSON_MERGER_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing $JSON_MERGER_CONFIG target")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"0d", 0, false},
		{"24h", 24 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{" 30m ", 30 * time.Minute, false},
		{"", 0, true},
		{"xd", 0, true},
		{"-1d", 0, true},
		{"-5m", 0, true},
		{"later", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
