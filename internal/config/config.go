// Package config handles configuration loading and validation for entropid.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the CLI and collection configuration.
type Config struct {
	// DefaultConditioning is the conditioning mode applied when a run does
	// not specify one explicitly: "raw", "von_neumann", or "sha256_chain".
	DefaultConditioning string `toml:"default_conditioning"`

	// CollectTimeoutSeconds bounds how long the pool waits for a single
	// parallel collection round; sources still running at the deadline are
	// not waited for, and their health is not changed by the timeout.
	CollectTimeoutSeconds int `toml:"collect_timeout_seconds"`

	// SessionDir is the directory new analysis sessions are written under.
	SessionDir string `toml:"session_dir"`

	// SessionIndexPath is the SQLite catalogue of past sessions.
	SessionIndexPath string `toml:"session_index_path"`

	// CalibrationPath points at an on-disk JSON override of the quantum
	// model's hierarchical prior table; empty uses the seeded default.
	CalibrationPath string `toml:"calibration_path"`

	// LogPath is the path to the daemon/CLI log file.
	LogPath string `toml:"log_path"`

	// EnabledSources restricts collection to this source name set; empty
	// means every registered, platform-available source.
	EnabledSources []string `toml:"enabled_sources"`

	// BootstrapRounds and BootstrapWindows tune the quantum model's
	// Monte-Carlo uncertainty estimation.
	BootstrapRounds  int `toml:"bootstrap_rounds"`
	BootstrapWindows int `toml:"bootstrap_windows"`

	// CouplingFDRAlpha is the Benjamini-Hochberg significance threshold
	// applied to cross-source coupling q-values.
	CouplingFDRAlpha float64 `toml:"coupling_fdr_alpha"`
}

// DefaultConfig returns a configuration with sensible defaults rooted at
// ~/.entropid.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		DefaultConditioning:   "sha256_chain",
		CollectTimeoutSeconds: 5,
		SessionDir:            filepath.Join(dir, "sessions"),
		SessionIndexPath:      filepath.Join(dir, "sessions.db"),
		CalibrationPath:       "",
		LogPath:               filepath.Join(dir, "entropid.log"),
		EnabledSources:        []string{},
		BootstrapRounds:       400,
		BootstrapWindows:      8,
		CouplingFDRAlpha:      0.05,
	}
}

// Path returns the default configuration file path.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Dir returns the base entropid configuration directory.
func Dir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".entropid")
}

// Load reads configuration from path, falling back to defaults for any
// field the file doesn't set. If the file doesn't exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	switch c.DefaultConditioning {
	case "raw", "von_neumann", "sha256_chain":
	default:
		return errors.New("config: default_conditioning must be raw, von_neumann, or sha256_chain")
	}
	if c.CollectTimeoutSeconds < 1 {
		return errors.New("config: collect_timeout_seconds must be at least 1")
	}
	if c.SessionDir == "" {
		return errors.New("config: session_dir is required")
	}
	if c.BootstrapRounds < 1 {
		return errors.New("config: bootstrap_rounds must be at least 1")
	}
	if c.BootstrapWindows < 1 {
		return errors.New("config: bootstrap_windows must be at least 1")
	}
	if c.CouplingFDRAlpha <= 0 || c.CouplingFDRAlpha >= 1 {
		return errors.New("config: coupling_fdr_alpha must be in (0, 1)")
	}
	return nil
}

// EnsureDirectories creates every directory this configuration writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.SessionDir,
		filepath.Dir(c.SessionIndexPath),
		filepath.Dir(c.LogPath),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
