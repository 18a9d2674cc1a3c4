// Package config holds the application configuration: where the profile
// registry lives, how the REST server binds and how verbose logging is.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const DefaultConfigFile = "pytest-insight.yaml"

type Config struct {
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type StorageConfig struct {
	// ProfilesPath locates the profile registry. Empty means
	// ~/.pytest_insight/profiles.json.
	ProfilesPath string `yaml:"profiles_path" json:"profiles_path"`

	// Profile selects a profile by name. Empty means the active one.
	Profile string `yaml:"profile" json:"profile"`
}

type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d, must be within 0-65535", c.Server.Port)
	}
	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Logging.Level)
		}
	}
	if c.Storage.ProfilesPath != "" && filepath.Ext(c.Storage.ProfilesPath) != ".json" {
		return fmt.Errorf("profiles_path must point at a .json file, got %s", c.Storage.ProfilesPath)
	}
	return nil
}

// Addr is the REST server bind address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ResolveProfilesPath expands the configured registry location, falling back
// to the default under the user's home directory.
func (c *Config) ResolveProfilesPath() (string, error) {
	if c.Storage.ProfilesPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, ".pytest_insight", "profiles.json"), nil
	}
	return c.Storage.ProfilesPath, nil
}
