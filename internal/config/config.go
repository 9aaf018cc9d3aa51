// Package config loads and validates the YAML server configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Library LibraryConfig `yaml:"library"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	MaxViewers int    `yaml:"max_viewers"`
}

// LibraryConfig points at the directory holding the playable container files.
type LibraryConfig struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with usable defaults for local runs.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Address: "0.0.0.0", Port: 8080, MaxViewers: 64},
		Library: LibraryConfig{Dir: "./movies", Extension: ".mve"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses the configuration file. Fields missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Library.Validate(); err != nil {
		return fmt.Errorf("library config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxViewers < 1 {
		return fmt.Errorf("max_viewers must be at least 1, got %d", s.MaxViewers)
	}

	return nil
}

// Validate validates library configuration.
func (l *LibraryConfig) Validate() error {
	if l.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if !strings.HasPrefix(l.Extension, ".") {
		return fmt.Errorf("extension must start with a dot, got %q", l.Extension)
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}

	return nil
}
