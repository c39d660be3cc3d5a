package jit

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config controls the tiered execution engine. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Enabled gates the compilation tier. When false the engine still
	// counts calls but never promotes.
	Enabled bool `toml:"enabled"`

	// Threshold is the call count at which an untried function is
	// promoted to compilation.
	Threshold uint64 `toml:"threshold"`

	// CacheCapacity is the code cache byte budget.
	CacheCapacity int `toml:"cache_capacity"`

	// OptLevel is passed to the backend for every compilation.
	OptLevel int `toml:"opt_level"`

	// PersistPath, when non-empty, names a SQLite database used to carry
	// compiled programs across runs.
	PersistPath string `toml:"persist_path"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Threshold:     1000,
		CacheCapacity: 256 * 1024,
		OptLevel:      MaxOptLevel,
	}
}

// LoadConfig reads a TOML config file, layering it over the defaults so a
// partial file only overrides what it names.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("jit: reading config: %w", err)
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("jit: parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Threshold == 0 {
		return fmt.Errorf("jit: threshold must be at least 1")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("jit: cache capacity must be positive")
	}
	if c.OptLevel < 0 || c.OptLevel > MaxOptLevel {
		return fmt.Errorf("jit: opt level must be between 0 and %d", MaxOptLevel)
	}
	return nil
}
