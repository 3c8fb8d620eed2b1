package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Project config has the highest precedence
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectPath is the project config location, relative to the working directory.
var ProjectPath = filepath.Join(".taskflow", "config.json")

// GlobalPath returns ~/.taskflow/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".taskflow", "config.json"), nil
}

// LoadDefault loads configuration from GlobalPath and ProjectPath.
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath)
}

// mergeConfigFile decodes a JSON config file on top of the base config.
// Sections and fields present in the file replace the base values; executors
// are merged by name. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// Validate checks the merged configuration for values the runner cannot use.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrent must be positive, got %d", c.Engine.MaxConcurrent))
	}
	if c.Engine.TaskTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("engine.task_timeout_seconds must not be negative"))
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the postgres driver"))
		}
	case StoreNone, "":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	for name, ex := range c.Executors {
		if ex.Command == "" {
			errs = append(errs, fmt.Errorf("executors.%s: command is required", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
