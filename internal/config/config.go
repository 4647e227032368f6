// Package config holds the pkgexpand configuration, loaded from an
// optional YAML file with CLI flags layered on top.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/javi11/pkgexpand/internal/pathutil"
)

// Config is the full runtime configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// LogFile, when set, mirrors logs into a rotating file.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`
	// PreservePermissions applies archive mode bits to extracted files.
	PreservePermissions bool `yaml:"preserve_permissions" mapstructure:"preserve_permissions"`
	// PreserveTimes applies archive modification times to extracted files.
	PreserveTimes bool `yaml:"preserve_times" mapstructure:"preserve_times"`
	// NestedMarkers overrides the base names treated as nested archives.
	NestedMarkers []string `yaml:"nested_markers" mapstructure:"nested_markers"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:            "info",
		PreservePermissions: true,
		PreserveTimes:       true,
	}
}

// LoadConfig reads the YAML config at path, falling back to defaults when
// path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("preserve_permissions", cfg.PreservePermissions)
	v.SetDefault("preserve_times", cfg.PreserveTimes)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (expected debug, info, warn or error)", c.LogLevel)
	}

	if err := pathutil.CheckFileDirectoryWritable(c.LogFile, "log"); err != nil {
		return err
	}

	for _, m := range c.NestedMarkers {
		if m == "" {
			return fmt.Errorf("nested_markers cannot contain an empty name")
		}
		if strings.ContainsAny(m, "/\\") {
			return fmt.Errorf("nested marker %q must be a base name, not a path", m)
		}
	}
	return nil
}
