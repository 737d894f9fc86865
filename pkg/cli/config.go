package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file in the user's home directory
const DefaultConfigName = ".mindful.yaml"

// Config is the CLI configuration file
type Config struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token,omitempty"`
	UnitPrice int64  `yaml:"unit_price"`
	// Location is the chat screen URL the payment return lands on
	Location string `yaml:"location"`
}

// DefaultConfig returns settings for a local development server
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:8080",
		UnitPrice: 25,
		Location:  "http://localhost:5173/chat",
	}
}

// DefaultConfigPath returns ~/.mindful.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigName
	}
	return filepath.Join(home, DefaultConfigName)
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path with owner-only permissions
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
