package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds language-model provider settings. It is embedded in the
// top-level Steward config under the "llm" YAML key.
type Config struct {
	// Provider is the fallback provider id used when no preference is
	// stored and no provider has credentials. Defaults to $LLM_PROVIDER.
	Provider string `yaml:"provider"`

	// MaxRetries bounds SDK-level retries of transient failures.
	// Default: 2.
	MaxRetries int `yaml:"max_retries"`

	// RequestTimeout caps a single HTTP request to a backend.
	// Default: 2m.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Claude  ProviderConfig `yaml:"claude"`
	ChatGPT ProviderConfig `yaml:"chatgpt"`
	Grok    ProviderConfig `yaml:"grok"`
	Llama   ProviderConfig `yaml:"llama"`
	Gemini  ProviderConfig `yaml:"gemini"`
}

// ProviderConfig configures one backend. Empty fields fall back to the
// provider's environment variables and built-in defaults.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ApplyDefaults fills credentials from the environment and zero-value
// fields from the provider table.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = os.Getenv("LLM_PROVIDER")
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	for _, p := range providers {
		pc := c.provider(p.id)
		if pc.APIKey == "" {
			pc.APIKey = firstEnv(p.keyEnv...)
		}
		if pc.BaseURL == "" {
			pc.BaseURL = firstEnv(p.baseURLEnv...)
		}
		if pc.BaseURL == "" {
			pc.BaseURL = p.baseURL
		}
		if pc.Model == "" {
			pc.Model = firstEnv(p.modelEnv...)
		}
		if pc.Model == "" {
			pc.Model = p.model
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Provider != "" {
		if _, ok := Canonical(c.Provider); !ok {
			return fmt.Errorf("llm.provider %q is not a known provider", c.Provider)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("llm.request_timeout must not be negative")
	}
	return nil
}

// provider returns a pointer to the settings block for a canonical id.
func (c *Config) provider(id string) *ProviderConfig {
	switch id {
	case "claude":
		return &c.Claude
	case "chatgpt":
		return &c.ChatGPT
	case "grok":
		return &c.Grok
	case "llama":
		return &c.Llama
	case "gemini":
		return &c.Gemini
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
