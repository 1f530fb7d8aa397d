// Package config handles configuration for ncdav-sync: the TOML config
// file, default paths, environment overrides, and the credential store the
// sync core reads server credentials from.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk TOML configuration. Every field has a usable
// default so first runs work without a config file.
type Config struct {
	// StatePath is the SQLite state store location. Defaults to
	// <app documents>/nextcloud-dav-sync.db.
	StatePath string `toml:"state_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogFile, when set, mirrors logs to a rotated file.
	LogFile string `toml:"log_file"`

	// HTTPTimeoutSeconds bounds each WebDAV request.
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`
}

// Defaults for fields left empty in the config file.
const (
	defaultLogLevel    = "info"
	defaultHTTPTimeout = 30
)

// DefaultConfig returns a Config populated with all defaults.
func DefaultConfig() *Config {
	return &Config{
		StatePath:          DefaultStatePath(),
		LogLevel:           defaultLogLevel,
		HTTPTimeoutSeconds: defaultHTTPTimeout,
	}
}

// Load reads and parses a TOML config file. Unknown keys are fatal —
// silently ignoring a typo leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns
// defaults. Supports the zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// validate rejects values no component could act on.
func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}

	if cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("http_timeout_seconds must be positive, got %d", cfg.HTTPTimeoutSeconds)
	}

	return nil
}

// ApplyEnvOverrides layers NCSYNC_* environment variables over cfg.
// Env wins over the config file; CLI flags win over both.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NCSYNC_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}

	if v := os.Getenv("NCSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("NCSYNC_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// DefaultConfigPath returns the config file location under the user config
// directory.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	return filepath.Join(base, "ncdav-sync", "config.toml")
}
