package mockproxy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a mockproxy server. It can be
// loaded from YAML, or built programmatically and converted to Options
// via ToOptions.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds listener and mode settings.
type ServerConfig struct {
	ControlAddr string `yaml:"control_addr"`
	MockAddr    string `yaml:"mock_addr"`
	Mode        string `yaml:"mode"`
	Verbose     bool   `yaml:"verbose"`
}

// LoadConfig reads and parses a YAML config file from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// ToOptions converts a Config into functional Options for New(). Options
// passed directly to New() after these will override them.
func (c *Config) ToOptions() []Option {
	var opts []Option
	if c.Server.ControlAddr != "" {
		opts = append(opts, WithControlAddr(c.Server.ControlAddr))
	}
	if c.Server.MockAddr != "" {
		opts = append(opts, WithMockAddr(c.Server.MockAddr))
	}
	if c.Server.Mode != "" {
		opts = append(opts, WithMode(ParseMode(c.Server.Mode)))
	}
	return opts
}
