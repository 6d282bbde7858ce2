package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "json-merger"

// ExpandTilde replaces a leading ~/ with the user's home directory.
// Paths like ~user/... are left unchanged (only current user's ~ is expanded).
// If $HOME is not set, the path is returned as-is.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return path
	}
	return home + path[1:]
}

// ConfigDir returns $XDG_CONFIG_HOME/json-merger, falling back to
// ~/.config/json-merger. It returns "" if no home directory is known.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/json-merger, falling back to
// ~/.local/share/json-merger, then ./json-merger.
func DataDir() string {
	if dir := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")); dir != "" {
		return dir
	}
	return filepath.Join(".", AppName)
}

func xdgDir(env, fallback string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(ExpandTilde(base), AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, fallback, AppName)
}
