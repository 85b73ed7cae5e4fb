// Package config loads the optional burrow defaults file. Everything
// in it can be overridden from the command line; the file only spares
// typing for recurring spawns.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "/etc/burrow.yaml"

// Bind is an extra source:dest bind applied to every spawn.
type Bind struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Config is the top-level defaults file.
type Config struct {
	Backend string            `yaml:"backend,omitempty"`
	User    string            `yaml:"user,omitempty"`
	Arch    string            `yaml:"arch,omitempty"`
	Binds   []Bind            `yaml:"binds,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Default returns the built-in defaults used when no file exists.
func Default() *Config {
	return &Config{
		Backend: "chroot",
		User:    "root",
	}
}

// Load reads a defaults file. A missing file at the default path is
// not an error; a missing file given explicitly is.
func Load(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "chroot", "nspawn", "docker":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	for _, b := range c.Binds {
		if !strings.HasPrefix(b.Source, "/") || !strings.HasPrefix(b.Dest, "/") {
			return fmt.Errorf("config: bind %q -> %q must use absolute paths", b.Source, b.Dest)
		}
	}
	return nil
}
