// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/parley-chat/parley/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Client configuration
	Client ClientConfig `toml:"client" json:"client"`

	// Reconcile configuration
	Reconcile ReconcileConfig `toml:"reconcile" json:"reconcile"`
}

// ServerConfig contains the parleyd server configuration.
type ServerConfig struct {
	// Port is the TCP port the server listens on
	Port int `toml:"port" json:"port"`
	// DatabasePath is the SQLite database location (empty = ~/.parley/parley.db)
	DatabasePath string `toml:"database_path" json:"database_path"`
	// AuthToken is the bearer credential required on every request.
	// Empty disables authentication.
	AuthToken string `toml:"auth_token" json:"auth_token"`
	// RateLimitRPS is the sustained per-client request rate
	RateLimitRPS float64 `toml:"rate_limit_rps" json:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst allowance
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// FragmentRunes is the reply fragment size in runes
	FragmentRunes int `toml:"fragment_runes" json:"fragment_runes"`
	// PaceMillis is the delay between fragments in milliseconds (0 = no pacing)
	PaceMillis int `toml:"pace_millis" json:"pace_millis"`
}

// ClientConfig contains the API client configuration.
type ClientConfig struct {
	// BaseURL is the server address, e.g. "http://127.0.0.1:8686"
	BaseURL string `toml:"base_url" json:"base_url"`
	// Token is the bearer credential sent on every call
	Token string `toml:"token" json:"token"`
}

// ReconcileConfig contains the background reconciliation configuration.
type ReconcileConfig struct {
	// IntervalSecs is the time between reconciliation ticks
	IntervalSecs int `toml:"interval_secs" json:"interval_secs"`
	// IdleThresholdSecs is how long without user input before
	// reconciliation is suppressed
	IdleThresholdSecs int `toml:"idle_threshold_secs" json:"idle_threshold_secs"`
}

// Interval returns the reconciliation interval as a duration.
func (r ReconcileConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSecs) * time.Second
}

// IdleThreshold returns the idle threshold as a duration.
func (r ReconcileConfig) IdleThreshold() time.Duration {
	return time.Duration(r.IdleThresholdSecs) * time.Second
}

// Pace returns the fragment pacing delay as a duration.
func (s ServerConfig) Pace() time.Duration {
	return time.Duration(s.PaceMillis) * time.Millisecond
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Port:           8686,
			DatabasePath:   "",
			AuthToken:      "",
			RateLimitRPS:   10,
			RateLimitBurst: 30,
			FragmentRunes:  24,
			PaceMillis:     0,
		},

		Client: ClientConfig{
			BaseURL: "http://127.0.0.1:8686",
			Token:   "",
		},

		Reconcile: ReconcileConfig{
			IntervalSecs:      30,
			IdleThresholdSecs: 300,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the parley configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DatabasePath resolves the SQLite database location, defaulting to a
// file inside the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Server.DatabasePath != "" {
		return c.Server.DatabasePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "parley.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files hold the auth token and must be owner-only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finalize(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finalize(cfg)
		}
	}

	return finalize(cfg)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

// finalize applies env overrides, defaults, and validation.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - PARLEY_PORT: overrides server.port
//   - PARLEY_DB: overrides server.database_path
//   - PARLEY_AUTH_TOKEN: overrides server.auth_token and client.token
//   - PARLEY_BASE_URL: overrides client.base_url
//   - PARLEY_RECONCILE_SECS: overrides reconcile.interval_secs
func (c *Config) ApplyEnvOverrides() {
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}

	if db := os.Getenv("PARLEY_DB"); db != "" {
		c.Server.DatabasePath = db
	}

	if token := os.Getenv("PARLEY_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
		c.Client.Token = token
	}

	if url := os.Getenv("PARLEY_BASE_URL"); url != "" {
		c.Client.BaseURL = url
	}

	if secs := os.Getenv("PARLEY_RECONCILE_SECS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			c.Reconcile.IntervalSecs = n
		}
	}
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

// SetDefaults fills in zero values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = defaults.Server.RateLimitRPS
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if c.Server.FragmentRunes == 0 {
		c.Server.FragmentRunes = defaults.Server.FragmentRunes
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = defaults.Client.BaseURL
	}
	if c.Reconcile.IntervalSecs == 0 {
		c.Reconcile.IntervalSecs = defaults.Reconcile.IntervalSecs
	}
	if c.Reconcile.IdleThresholdSecs == 0 {
		c.Reconcile.IdleThresholdSecs = defaults.Reconcile.IdleThresholdSecs
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must be non-negative, got %v", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server.rate_limit_burst must be non-negative, got %d", c.Server.RateLimitBurst)
	}
	if c.Server.FragmentRunes < 1 {
		return fmt.Errorf("server.fragment_runes must be positive, got %d", c.Server.FragmentRunes)
	}
	if c.Server.PaceMillis < 0 {
		return fmt.Errorf("server.pace_millis must be non-negative, got %d", c.Server.PaceMillis)
	}
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url must not be empty")
	}
	if c.Reconcile.IntervalSecs < 1 {
		return fmt.Errorf("reconcile.interval_secs must be positive, got %d", c.Reconcile.IntervalSecs)
	}
	if c.Reconcile.IdleThresholdSecs < 1 {
		return fmt.Errorf("reconcile.idle_threshold_secs must be positive, got %d", c.Reconcile.IdleThresholdSecs)
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the TOML config file atomically.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
