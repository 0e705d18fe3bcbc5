// Package config loads CLI configuration: defaults -> TOML file -> env
// vars (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Sessions SessionsConfig `toml:"sessions"`
	Archive  ArchiveConfig  `toml:"archive"`
}

type SessionsConfig struct {
	// Dir overrides the per-project session directory.
	Dir string `toml:"dir"`
}

type ArchiveConfig struct {
	// Backend is "sqlite" (the default) or "postgres".
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Archive: ArchiveConfig{SQLitePath: "strand.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "strand.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("STRAND_SESSIONS_DIR"); v != "" {
		cfg.Sessions.Dir = v
	}
	if v := os.Getenv("STRAND_ARCHIVE_BACKEND"); v != "" {
		cfg.Archive.Backend = v
	}
	if v := os.Getenv("STRAND_SQLITE_PATH"); v != "" {
		cfg.Archive.SQLitePath = v
	}
	if v := os.Getenv("STRAND_POSTGRES_URL"); v != "" {
		cfg.Archive.PostgresURL = v
	}

	return cfg
}
