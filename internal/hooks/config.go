package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ConfigFile represents the structure of the config file
type ConfigFile struct {
	Hooks *Config `json:"hooks"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig loads configuration from a JSON file
// Returns default config if file doesn't exist
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if configFile.Hooks == nil {
		return DefaultConfig(), nil
	}

	if err := configFile.Hooks.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return configFile.Hooks, nil
}

// LoadConfigWithEnvOverride loads config from file and applies environment variable overrides
func LoadConfigWithEnvOverride(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if val := os.Getenv("JOBTRACE_PROJECT"); val != "" {
		config.Project = val
	}

	if val := os.Getenv("JOBTRACE_ENVIRONMENT"); val != "" {
		config.Environment = val
	}

	if val := os.Getenv("JOBTRACE_LOGGING_JOBS"); val != "" {
		config.LoggingJobs = nil
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				config.LoggingJobs = append(config.LoggingJobs, name)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config after env override: %w", err)
	}

	return config, nil
}
