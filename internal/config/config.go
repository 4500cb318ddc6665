// Package config loads the daemon configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"livedirs/internal/logging"
)

const (
	DefaultListen   = "127.0.0.1:7475"
	DefaultLogLevel = string(logging.LevelInfo)
)

var ErrNoRoots = errors.New("no directories to watch")

type Config struct {
	// Roots are the absolute paths of the directories to mirror.
	Roots []string `yaml:"roots"`
	// Listen is the address the edit-stream server binds to. Empty
	// disables the server.
	Listen string `yaml:"listen"`
	// AuthToken, when set, is required as a query parameter by the
	// edit-stream server.
	AuthToken string `yaml:"auth_token"`
	LogLevel  string `yaml:"log_level"`
}

// Load reads the configuration file at path, falling back to defaults
// when path is empty or the file does not exist. LIVEDIRS_LISTEN,
// LIVEDIRS_AUTH_TOKEN and LIVEDIRS_LOG_LEVEL override file values.
func Load(path string) (*Config, error) {
	config := &Config{
		Listen:   DefaultListen,
		LogLevel: DefaultLogLevel,
	}

	if path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(payload, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if listen := os.Getenv("LIVEDIRS_LISTEN"); listen != "" {
		config.Listen = listen
	}
	if token := os.Getenv("LIVEDIRS_AUTH_TOKEN"); token != "" {
		config.AuthToken = token
	}
	if level := os.Getenv("LIVEDIRS_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	return config, nil
}

// Validate checks the configuration for use by the daemon.
func (config *Config) Validate() error {
	if len(config.Roots) == 0 {
		return ErrNoRoots
	}
	for _, root := range config.Roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("root %q is not an absolute path", root)
		}
	}
	if _, ok := logging.ParseLevel(config.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	return nil
}

// Level returns the parsed log level, assuming a validated config.
func (config *Config) Level() logging.Level {
	level, ok := logging.ParseLevel(config.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

func (config *Config) String() string {
	return fmt.Sprintf("roots=[%s] listen=%s log_level=%s",
		strings.Join(config.Roots, ","), config.Listen, config.LogLevel)
}
