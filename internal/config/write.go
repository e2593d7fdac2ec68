package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the chatlog config directory path.
// Uses $XDG_CONFIG_HOME/chatlog if set, otherwise ~/.config/chatlog.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatlog")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chatlog")
}

// WriteDefault writes a default config.toml pointing to storePath.
// Returns the config file path. Skips if config.toml already exists.
func WriteDefault(storePath string) (string, error) {
	dir := ConfigDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(path); err == nil {
		return path, nil // already exists
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	portablePath := CompressHome(storePath)

	content := fmt.Sprintf(`store_path = %q
log_level = "warn"

[archive]
enabled = true
max_age_days = 30

[cache]
enabled = true
`, portablePath)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	return path, nil
}

// CompressHome replaces $HOME prefix with ~/ for portable config values.
func CompressHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home+"/") {
		return "~/" + path[len(home)+1:]
	}
	if path == home {
		return "~"
	}
	return path
}
