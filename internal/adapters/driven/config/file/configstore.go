// Package file loads and saves the TOML configuration file.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// DefaultPath returns the standard config file location, ~/.ludex/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".ludex", "config.toml"), nil
}

// Load reads the config file at path. A missing file yields the defaults;
// a malformed one is an error.
func Load(path string) (*domain.Config, error) {
	cfg, err := defaults(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.DataDir == "" {
		def, err := defaults(path)
		if err != nil {
			return nil, err
		}
		cfg.DataDir = def.DataDir
	}
	return cfg, nil
}

// Save writes the config file, creating its directory.
func Save(path string, cfg *domain.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// defaults places the data directory next to the config file.
func defaults(path string) (*domain.Config, error) {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".ludex")
	}
	return &domain.Config{DataDir: filepath.Join(dir, "data")}, nil
}
