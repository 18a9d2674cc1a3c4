package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML config file, filling unset fields with defaults.
// An empty path loads DefaultConfigFile when it exists and otherwise just
// returns the defaults; an explicit path must exist.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigFile
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", configPath, err)
	}

	if config.Server.Port == 0 {
		config.Server.Port = DefaultConfig().Server.Port
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultConfig().Server.Host
	}
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultConfig().Logging.Level
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// SaveConfig validates and writes a config file.
func SaveConfig(config *Config, configPath string) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if configPath == "" {
		configPath = DefaultConfigFile
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file %s: %w", configPath, err)
	}
	return nil
}
