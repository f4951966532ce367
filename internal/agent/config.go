package agent

import (
	"fmt"
	"time"
)

// Config bounds the conversation loop. It is embedded in the top-level
// Steward config under the "agent" YAML key.
type Config struct {
	// Timezone is the IANA zone used for the time context and for
	// timestamps without an offset. Default: America/New_York.
	Timezone string `yaml:"timezone"`

	// MaxRounds caps model calls per user message. Default: 10.
	MaxRounds int `yaml:"max_rounds"`

	// MaxTokens caps each model reply. Default: 4096.
	MaxTokens int `yaml:"max_tokens"`

	// ToolConcurrency bounds sibling tool calls run at once. Default: 4.
	ToolConcurrency int `yaml:"tool_concurrency"`

	// ToolTimeout caps one tool dispatch. Default: 30s.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ModelTimeout caps one model call. Default: 2m.
	ModelTimeout time.Duration `yaml:"model_timeout"`

	// SessionIdleTTL drops API chat sessions unused for this long.
	// Default: 30m.
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = 10
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.ToolConcurrency == 0 {
		c.ToolConcurrency = 4
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.ModelTimeout == 0 {
		c.ModelTimeout = 2 * time.Minute
	}
	if c.SessionIdleTTL == 0 {
		c.SessionIdleTTL = 30 * time.Minute
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("agent.timezone %q: %w", c.Timezone, err)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be at least 1")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("agent.max_tokens must be positive")
	}
	if c.ToolConcurrency < 1 {
		return fmt.Errorf("agent.tool_concurrency must be at least 1")
	}
	if c.ToolTimeout <= 0 || c.ModelTimeout <= 0 || c.SessionIdleTTL <= 0 {
		return fmt.Errorf("agent timeouts must be positive")
	}
	return nil
}

// Location loads the configured zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
