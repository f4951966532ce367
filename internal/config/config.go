// Package config handles Steward configuration loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nugget/steward/internal/agent"
	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/email"
	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/monitor"
	"github.com/nugget/steward/internal/mqtt"
	"github.com/nugget/steward/internal/news"
	"github.com/nugget/steward/internal/reddit"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/steward/config.yaml, /etc/steward/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "steward", "config.yaml"))
	}

	paths = append(paths, "/etc/steward/config.yaml")
	return paths
}

// ErrNoConfig is returned by FindConfig when no file exists on the
// search path.
var ErrNoConfig = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error wrapping ErrNoConfig if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Config holds all Steward configuration.
type Config struct {
	Listen   ListenConfig    `yaml:"listen"`
	LLM      llm.Config      `yaml:"llm"`
	Agent    agent.Config    `yaml:"agent"`
	Calendar calendar.Config `yaml:"calendar"`
	Email    email.Config    `yaml:"email"`
	News     news.Config     `yaml:"news"`
	Reddit   reddit.Config   `yaml:"reddit"`
	MQTT     mqtt.Config     `yaml:"mqtt"`
	Monitor  monitor.Config  `yaml:"monitor"`

	// DataDir holds the SQLite state database. Default: ~/.steward,
	// or $STEWARD_DATA_DIR.
	DataDir string `yaml:"data_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text (default) or json

	// ShutdownTimeout bounds graceful shutdown of the API server.
	// Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8080, or $PORT
}

// Addr returns the host:port the API server binds.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file, then applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration built from defaults and the
// environment alone, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-value fields here and in every section.
func (c *Config) ApplyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
		if p := os.Getenv("PORT"); p != "" {
			fmt.Sscanf(p, "%d", &c.Listen.Port)
		}
	}
	if c.DataDir == "" {
		c.DataDir = os.Getenv("STEWARD_DATA_DIR")
	}
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".steward")
		} else {
			c.DataDir = ".steward"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	c.LLM.ApplyDefaults()
	c.Agent.ApplyDefaults()
	c.Calendar.ApplyDefaults()
	c.Email.ApplyDefaults()
	c.News.ApplyDefaults()
	c.Reddit.ApplyDefaults()
	c.MQTT.ApplyDefaults()
	c.Monitor.ApplyDefaults()
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d is out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q must be text or json", c.LogFormat)
	}

	sections := []interface{ Validate() error }{
		c.LLM, c.Agent, c.Calendar, c.Email, c.News, c.Reddit, c.MQTT,
	}
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if !c.Monitor.Disabled {
		if err := c.Monitor.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StatePath returns the path of the SQLite state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "steward.db")
}
