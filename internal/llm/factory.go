package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type providerInfo struct {
	id         string
	name       string
	keyEnv     []string
	baseURLEnv []string
	modelEnv   []string
	baseURL    string
	model      string
}

// needsKey reports whether the provider requires an API key.
func (p providerInfo) needsKey() bool { return len(p.keyEnv) > 0 }

// providers is the provider table. Order matters: the first available
// entry is the fallback when no preference is stored.
var providers = []providerInfo{
	{
		id:     "claude",
		name:   "Claude (Anthropic)",
		keyEnv: []string{"ANTHROPIC_API_KEY"},
		model:  "claude-sonnet-4-20250514",
	},
	{
		id:     "chatgpt",
		name:   "ChatGPT (OpenAI)",
		keyEnv: []string{"OPENAI_API_KEY"},
		model:  "gpt-4-turbo-preview",
	},
	{
		id:      "grok",
		name:    "Grok (xAI)",
		keyEnv:  []string{"GROK_API_KEY", "XAI_API_KEY"},
		baseURL: "https://api.x.ai/v1",
		model:   "grok-beta",
	},
	{
		id:         "llama",
		name:       "Llama (Ollama)",
		baseURLEnv: []string{"OLLAMA_BASE_URL"},
		modelEnv:   []string{"OLLAMA_MODEL"},
		baseURL:    "http://localhost:11434",
		model:      "llama3",
	},
	{
		id:     "gemini",
		name:   "Gemini (Google)",
		keyEnv: []string{"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"},
		model:  "gemini-pro",
	},
}

var aliases = map[string]string{
	"anthropic": "claude",
	"openai":    "chatgpt",
	"gpt":       "chatgpt",
	"xai":       "grok",
	"ollama":    "llama",
	"google":    "gemini",
}

// Canonical resolves a provider name or alias to its id.
func Canonical(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		n = a
	}
	for _, p := range providers {
		if p.id == n {
			return n, true
		}
	}
	return "", false
}

func lookup(id string) providerInfo {
	for _, p := range providers {
		if p.id == id {
			return p
		}
	}
	return providerInfo{}
}

// Settings persists the preferred provider between runs.
type Settings interface {
	PreferredProvider() (string, error)
	SetPreferredProvider(id string) error
}

// ProviderStatus describes one provider for listings.
type ProviderStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Default   bool   `json:"default"`
}

// Factory builds providers by name from configuration.
type Factory struct {
	cfg        Config
	settings   Settings
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFactory creates a Factory. cfg should already have defaults
// applied. settings may be nil, in which case preferences are not
// persisted.
func NewFactory(cfg Config, settings Settings, httpClient *http.Client, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{cfg: cfg, settings: settings, httpClient: httpClient, logger: logger}
}

// IsAvailable reports whether a provider has the credentials it needs.
func (f *Factory) IsAvailable(name string) bool {
	id, ok := Canonical(name)
	if !ok {
		return false
	}
	if !lookup(id).needsKey() {
		return true
	}
	return f.cfg.provider(id).APIKey != ""
}

// List returns every provider in table order with its status.
func (f *Factory) List() []ProviderStatus {
	effective := f.Effective()
	out := make([]ProviderStatus, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderStatus{
			ID:        p.id,
			Name:      p.name,
			Model:     f.cfg.provider(p.id).Model,
			Available: f.IsAvailable(p.id),
			Default:   p.id == effective,
		})
	}
	return out
}

// Effective returns the provider to use when none is named: the stored
// preference if it is available, else the first available provider,
// else the configured fallback, else claude.
func (f *Factory) Effective() string {
	if f.settings != nil {
		pref, err := f.settings.PreferredProvider()
		if err != nil {
			f.logger.Warn("failed to read preferred provider", "error", err)
		}
		if id, ok := Canonical(pref); ok && f.IsAvailable(id) {
			return id
		}
	}
	for _, p := range providers {
		if f.IsAvailable(p.id) {
			return p.id
		}
	}
	if id, ok := Canonical(f.cfg.Provider); ok {
		return id
	}
	return "claude"
}

// SetDefault stores name as the preferred provider. Unknown and
// unavailable providers are rejected.
func (f *Factory) SetDefault(name string) error {
	id, ok := Canonical(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if !f.IsAvailable(id) {
		return &ConfigError{Provider: id, Detail: "cannot set as default", Err: ErrMissingCredential}
	}
	if f.settings == nil {
		return fmt.Errorf("no settings store configured")
	}
	return f.settings.SetPreferredProvider(id)
}

// Model returns the configured model for a provider.
func (f *Factory) Model(name string) string {
	id, ok := Canonical(name)
	if !ok {
		return ""
	}
	return f.cfg.provider(id).Model
}

// New builds the named provider, or the effective provider when name
// is empty. Missing credentials yield a *ConfigError; there is no
// silent fallback to another backend.
func (f *Factory) New(name string) (Provider, error) {
	if name == "" {
		name = f.Effective()
	}
	id, ok := Canonical(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	pc := *f.cfg.provider(id)
	opts := clientOptions{
		maxRetries: f.cfg.MaxRetries,
		timeout:    f.cfg.RequestTimeout,
		httpClient: f.httpClient,
		logger:     f.logger,
	}

	var (
		p   Provider
		err error
	)
	switch id {
	case "claude":
		p, err = NewAnthropic(pc, opts)
	case "chatgpt":
		p, err = NewOpenAI("chatgpt", pc, opts)
	case "grok":
		if pc.BaseURL == "" {
			pc.BaseURL = lookup("grok").baseURL
		}
		p, err = NewOpenAI("grok", pc, opts)
	case "llama":
		p = NewOllama(pc, opts)
	case "gemini":
		p, err = NewGemini(pc, opts)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// defaultModel returns the configured model, or the table default.
func defaultModel(id string, pc ProviderConfig) string {
	if pc.Model != "" {
		return pc.Model
	}
	return lookup(id).model
}

// clientOptions carries the shared transport settings into adapters.
type clientOptions struct {
	maxRetries int
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}
