package authkit

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// LoadConfig reads a Config from a YAML file.
//
// Durations use Go syntax ("10s", "5m"). Fields left out of the file keep
// their zero value and pick up defaults in NewClient.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("authkit: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a Config from YAML bytes.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("authkit: parse config: %w", err)
	}
	return cfg, nil
}
