// Package config loads the facegate CLI configuration from a YAML
// file, with defaults that work for a freshly provisioned device.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config holds the device-side settings of the facegate CLI. Secrets
// (service key, product key, private key material) never live here;
// they come from the environment.
type Config struct {
	// BaseURL is the backend project URL.
	BaseURL string `yaml:"base_url"`
	// Bucket is the storage bucket holding encrypted reference images.
	Bucket string `yaml:"bucket"`
	// DataDir is where the device keeps its key, gallery, and audit log.
	DataDir string `yaml:"data_dir"`
	// Threshold is the cosine similarity needed to accept a face.
	Threshold float64 `yaml:"threshold"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// ExtractorURL points at the face extraction service.
	ExtractorURL string `yaml:"extractor_url"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	dataDir := ".facegate"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".facegate")
	}
	return Config{
		Bucket:    "images",
		DataDir:   dataDir,
		Threshold: 0.6,
		LogLevel:  "info",
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; present fields override them.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges. The base URL is allowed to be empty
// here because the environment may supply it.
func (c *Config) Validate() error {
	if c.Threshold < -1 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [-1, 1]", c.Threshold)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
