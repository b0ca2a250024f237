// Package config reads the lorakit configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvLorasDir names the environment variable consulted when neither a flag
// nor the config file sets the LoRA directory.
const EnvLorasDir = "LORAKIT_LORAS_DIR"

// Config represents the lorakit configuration file
// (~/.config/lorakit/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	LorasDir string `yaml:"loras_dir"`

	// Load defaults
	Alpha         *float64 `yaml:"alpha"`
	StrengthModel *float64 `yaml:"strength_model"`
	StrengthClip  *float64 `yaml:"strength_clip"`
	DType         string   `yaml:"dtype"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// Path returns the default config file location, or "" when the user
// config directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "lorakit", "config.yaml")
}

// Load reads the config file at path. A missing file (or empty path) yields
// a zero Config; a malformed one is an error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveLorasDir picks the LoRA directory: an explicit flag value, then
// $LORAKIT_LORAS_DIR, then the config file.
func (c Config) ResolveLorasDir(flag string) string {
	for _, dir := range []string{flag, os.Getenv(EnvLorasDir), c.LorasDir} {
		if dir = strings.TrimSpace(dir); dir != "" {
			return dir
		}
	}
	return ""
}
