// Package config holds the engine's bootstrap configuration (resolved
// before the Store exists) and the Settings entity persisted in the
// Store's single key-value namespace.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the bootstrap configuration read from flags/env before
// the data root's database is opened. It is distinct from Settings,
// which is a Store-owned entity mutated at runtime via /settings.
type EngineConfig struct {
	// DataRoot is the directory owning the database, shards, thumbnails,
	// face crops, audio scratch space, models, and logs.
	DataRoot string `yaml:"data_root" json:"data_root"`

	// PortRangeLow/PortRangeHigh bound the localhost port the Lifecycle
	// Manager picks from: [48100, 48199] by default.
	PortRangeLow  int `yaml:"port_range_low" json:"port_range_low"`
	PortRangeHigh int `yaml:"port_range_high" json:"port_range_high"`

	// DevOrigin, when non-empty, is additionally allowed by CORS
	// alongside the desktop shell's origin (debug mode only).
	DevOrigin string `yaml:"dev_origin" json:"dev_origin"`

	// Debug enables verbose logging and the DevOrigin CORS exception.
	Debug bool `yaml:"debug" json:"debug"`

	// ShellOrigin is the desktop shell's origin, the only one allowed by
	// CORS outside of debug mode.
	ShellOrigin string `yaml:"shell_origin" json:"shell_origin"`
}

// DefaultDataRoot returns the platform's conventional per-user data
// directory for the engine.
func DefaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".media-engine")
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DataRoot:      DefaultDataRoot(),
		PortRangeLow:  48100,
		PortRangeHigh: 48199,
		ShellOrigin:   "app://media-shell",
	}
}

// LoadFile overlays a YAML config file onto the defaults. Fields the
// file omits keep their default values.
func LoadFile(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the bootstrap configuration is usable.
func (c EngineConfig) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data root cannot be empty")
	}
	if c.PortRangeLow <= 0 || c.PortRangeHigh <= c.PortRangeLow {
		return fmt.Errorf("invalid port range [%d, %d]", c.PortRangeLow, c.PortRangeHigh)
	}
	return nil
}

// EnsureLayout creates the directories the engine owns under DataRoot:
// thumbnails/, faces/, shards/, audio/, models/, logs/.
func (c EngineConfig) EnsureLayout() error {
	dirs := []string{
		c.DataRoot,
		filepath.Join(c.DataRoot, "thumbnails"),
		filepath.Join(c.DataRoot, "faces"),
		filepath.Join(c.DataRoot, "shards"),
		filepath.Join(c.DataRoot, "audio"),
		filepath.Join(c.DataRoot, "models"),
		filepath.Join(c.DataRoot, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

// DBPath returns the path to the engine's SQLite database.
func (c EngineConfig) DBPath() string {
	return filepath.Join(c.DataRoot, "engine.db")
}

// ThumbnailsDir, FacesDir, ShardsDir, AudioDir, ModelsDir path helpers.
func (c EngineConfig) ThumbnailsDir() string { return filepath.Join(c.DataRoot, "thumbnails") }
func (c EngineConfig) FacesDir() string      { return filepath.Join(c.DataRoot, "faces") }
func (c EngineConfig) ShardsDir() string     { return filepath.Join(c.DataRoot, "shards") }
func (c EngineConfig) AudioDir() string      { return filepath.Join(c.DataRoot, "audio") }
func (c EngineConfig) ModelsDir() string     { return filepath.Join(c.DataRoot, "models") }
