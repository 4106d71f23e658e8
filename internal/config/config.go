// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Tokens      TokenConfig       `yaml:"tokens"`
	Reporting   ReportingConfig   `yaml:"reporting"`
	Testing     TestingConfig     `yaml:"testing"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds cloud service connection settings.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// CredentialsConfig holds durable credential storage settings.
type CredentialsConfig struct {
	Path string `yaml:"path"`
}

// TokenConfig holds token lifecycle timing settings.
type TokenConfig struct {
	// RotationThreshold is how close to refresh-token expiry the agent
	// rotates the refresh token.
	RotationThreshold Duration `yaml:"rotation_threshold"`

	// RefreshInterval is the minimum spacing between access-token refresh
	// attempts, successful or not.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// RefreshBuffer is how close to access-token expiry the agent refreshes
	// early, overriding the interval check.
	RefreshBuffer Duration `yaml:"refresh_buffer"`
}

// ReportingConfig holds health reporting settings.
type ReportingConfig struct {
	HealthInterval Duration `yaml:"health_interval"`
	TickInterval   Duration `yaml:"tick_interval"`
}

// TestingConfig holds deterministic-lifetime overrides for testing.
// When Enabled, server-supplied token expiries are ignored and these fixed
// durations are used instead. Production and test runs share the same code
// path; this is selected purely by configuration.
type TestingConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AccessLifetime  Duration `yaml:"access_lifetime"`
	RefreshLifetime Duration `yaml:"refresh_lifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "https://api.junctionrelay.com",
		},
		Credentials: CredentialsConfig{
			Path: "./device_credentials.json",
		},
		Tokens: TokenConfig{
			RotationThreshold: Duration{24 * time.Hour},
			RefreshInterval:   Duration{1 * time.Hour},
			RefreshBuffer:     Duration{5 * time.Minute},
		},
		Reporting: ReportingConfig{
			HealthInterval: Duration{60 * time.Second},
			TickInterval:   Duration{1 * time.Second},
		},
		Testing: TestingConfig{
			Enabled:         false,
			AccessLifetime:  Duration{6 * time.Minute},
			RefreshLifetime: Duration{18 * time.Minute},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// File doesn't exist — use defaults + env overrides
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have the highest precedence.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("JR_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if path := os.Getenv("JR_CREDENTIALS_PATH"); path != "" {
		cfg.Credentials.Path = path
	}
	if level := os.Getenv("JR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks that the configuration is valid for production use.
// Returns an error if required fields are missing or if HTTPS is not used
// for non-localhost server URLs.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server.URL, "https://") {
		// Allow localhost for development
		if !strings.Contains(c.Server.URL, "localhost") && !strings.Contains(c.Server.URL, "127.0.0.1") {
			return fmt.Errorf("server URL must use HTTPS (got: %s)", c.Server.URL)
		}
	}
	if c.Credentials.Path == "" {
		return fmt.Errorf("credentials path is required")
	}
	if c.Tokens.RotationThreshold.Duration <= 0 {
		return fmt.Errorf("rotation threshold must be positive")
	}
	if c.Tokens.RefreshInterval.Duration <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Testing.Enabled {
		if c.Testing.AccessLifetime.Duration <= 0 || c.Testing.RefreshLifetime.Duration <= 0 {
			return fmt.Errorf("testing mode requires positive token lifetimes")
		}
	}
	return nil
}
