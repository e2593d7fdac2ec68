package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all chatlog configuration.
type Config struct {
	StorePath string `toml:"store_path"`
	LogLevel  string `toml:"log_level"`

	Archive ArchiveConfig `toml:"archive"`
	Cache   CacheConfig   `toml:"cache"`
}

type ArchiveConfig struct {
	Enabled    bool `toml:"enabled"`
	MaxAgeDays int  `toml:"max_age_days"`
}

type CacheConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StorePath: "~/.local/share/chatlog",
		LogLevel:  "warn",
		Archive: ArchiveConfig{
			Enabled:    true,
			MaxAgeDays: 30,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}
}

// Load reads config from the standard path, falling back to defaults.
func Load() (Config, error) {
	cfg := DefaultConfig()

	paths := configPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if _, err := toml.DecodeFile(p, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", p, err)
			}
			break
		}
	}

	// Expand ~ in paths
	cfg.StorePath = expandHome(cfg.StorePath)

	return cfg, nil
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "chatlog", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "chatlog", "config.toml"))
	}

	return paths
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// SessionDir returns the per-project session directory.
func (c Config) SessionDir(projectHash string) string {
	return filepath.Join(c.StorePath, "projects", projectHash)
}

// ArchiveDir returns the per-project archive directory.
func (c Config) ArchiveDir(projectHash string) string {
	return filepath.Join(c.StorePath, "archive", projectHash)
}

// CachePath returns the location of the shared header cache database.
func (c Config) CachePath() string {
	return filepath.Join(c.StorePath, "headers.db")
}
