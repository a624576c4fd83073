package mock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8080
	DefaultHost          = "localhost"
	DefaultMaxPageSize   = 100
	DefaultMaxTweetChars = 280
)

// LoadConfig loads a mock configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// validateConfig validates the mock configuration
func validateConfig(config *Config) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	if config.LatencyMs < 0 || config.JitterMs < 0 {
		return fmt.Errorf("latencyMs and jitterMs cannot be negative")
	}
	if config.FailureRate < 0 || config.FailureRate > 1 {
		return fmt.Errorf("failureRate must be between 0 and 1")
	}
	if config.MaxPageSize < 0 {
		return fmt.Errorf("maxPageSize cannot be negative")
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.MaxPageSize == 0 {
		config.MaxPageSize = DefaultMaxPageSize
	}
	if config.MaxTweetChars == 0 {
		config.MaxTweetChars = DefaultMaxTweetChars
	}
}
