package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Addr returns the listen address in host:port form. An unset port
// defaults to 8080.
func (c *Config) Addr() string {
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, port)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath picks the config file path: an explicitly set flag
// wins over the REPORTDB_CONFIG environment variable, which wins over the
// flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("REPORTDB_CONFIG"); v != "" {
		return v
	}
	return flagVal
}
