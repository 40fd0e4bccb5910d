package campaign

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a campaign from YAML or JSON. Fields missing from data keep
// their Default values.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse campaign: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a campaign file
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read campaign file: %w", err)
	}
	return Parse(data)
}
