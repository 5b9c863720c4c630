package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models labelline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"auth"`
	Allocation struct {
		DefaultQuantity int `yaml:"default_quantity"`
		MaxQuantity     int `yaml:"max_quantity"`
	} `yaml:"allocation"`
}

// Default returns the baseline configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v1"
	cfg.Allocation.DefaultQuantity = 10
	cfg.Allocation.MaxQuantity = 100
	return cfg
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "labelline.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document, applying defaults for
// unset fields.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" {
		return fmt.Errorf("config.server.base_path is required")
	}
	if c.Allocation.DefaultQuantity <= 0 {
		return fmt.Errorf("config.allocation.default_quantity must be positive")
	}
	if c.Allocation.MaxQuantity < c.Allocation.DefaultQuantity {
		return fmt.Errorf("config.allocation.max_quantity must be at least default_quantity")
	}
	return nil
}
