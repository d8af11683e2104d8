// Package config holds server configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the s7dump server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)

	// SocatPath and SttyPath override the bridge tool binaries.
	SocatPath string `yaml:"socat_path"`
	SttyPath  string `yaml:"stty_path"`

	// EventBuffer is the scheduler event channel capacity.
	EventBuffer int `yaml:"event_buffer"`

	// SchedulePollInterval is how often the cron table is checked.
	SchedulePollInterval time.Duration `yaml:"schedule_poll_interval"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:                 ":8080",
		LogLevel:             "info",
		LogFormat:            "text",
		DBPath:               "s7dump.db",
		EventBuffer:          64,
		SchedulePollInterval: 30 * time.Second,
	}
}

// Load reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
