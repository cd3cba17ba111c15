// Package config loads tally settings from flags, environment and the
// config file.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName names the config directory and the environment prefix.
const AppName = "tally"

// ExpandPath expands a leading ~ and any $VAR references in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// Dir returns the directory holding the config file and, by default, the
// database and rule cache.
func Dir() string {
	return ExpandPath(filepath.Join("~", ".config", AppName))
}
