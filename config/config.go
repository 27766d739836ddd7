// Package config loads blobdoc settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every command.
type Config struct {
	// Backend is the blob store: json, sqlite or memory.
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
	// MaxValueSize caps the snapshot size in bytes. Zero disables the cap.
	MaxValueSize int    `yaml:"max_value_size"`
	LogLevel     string `yaml:"log_level"`
	// Strict makes an unreadable snapshot an error instead of resetting it.
	Strict bool `yaml:"strict"`
	// Schema is the path of a JSON Schema file applied to every collection.
	Schema string `yaml:"schema"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:  "json",
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path and then with
// BLOBDOC_* environment variables. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Config) applyEnv() error {
	c.Backend = env("BLOBDOC_BACKEND", c.Backend)
	c.DataDir = env("BLOBDOC_DATA_DIR", c.DataDir)
	c.LogLevel = env("BLOBDOC_LOG_LEVEL", c.LogLevel)
	c.Schema = env("BLOBDOC_SCHEMA", c.Schema)
	if v := os.Getenv("BLOBDOC_MAX_VALUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLOBDOC_MAX_VALUE_SIZE: %w", err)
		}
		c.MaxValueSize = n
	}
	if v := os.Getenv("BLOBDOC_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BLOBDOC_STRICT: %w", err)
		}
		c.Strict = b
	}
	return nil
}

// Validate checks field values that cannot be caught by YAML decoding.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case "json", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.MaxValueSize < 0 {
		errs = append(errs, fmt.Errorf("max_value_size must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}
