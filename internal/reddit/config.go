package reddit

import (
	"fmt"
	"net/url"
	"os"

	"github.com/nugget/steward/internal/buildinfo"
)

// Reddit endpoints.
const (
	DefaultAPIURL   = "https://oauth.reddit.com"
	DefaultAuthURL  = "https://www.reddit.com/api/v1/authorize"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
)

// Config holds Reddit API credentials. It is embedded in the top-level
// Steward config under the "reddit" YAML key.
type Config struct {
	// ClientID and ClientSecret identify the registered Reddit app.
	// Fall back to REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Username and Password enable the script-app password grant when
	// no web authorization has been stored. Fall back to
	// REDDIT_USERNAME and REDDIT_PASSWORD.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RedirectURL is the web OAuth callback. Falls back to
	// REDDIT_REDIRECT_URI.
	RedirectURL string `yaml:"redirect_url"`

	// UserAgent is sent on every request. Reddit throttles generic
	// agents. Default: buildinfo.UserAgent().
	UserAgent string `yaml:"user_agent"`

	APIURL   string `yaml:"api_url"`
	AuthURL  string `yaml:"auth_url"`
	TokenURL string `yaml:"token_url"`
}

// Configured reports whether app credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ApplyDefaults fills zero-value fields from the environment.
func (c *Config) ApplyDefaults() {
	envs := []struct {
		dst *string
		env string
	}{
		{&c.ClientID, "REDDIT_CLIENT_ID"},
		{&c.ClientSecret, "REDDIT_CLIENT_SECRET"},
		{&c.Username, "REDDIT_USERNAME"},
		{&c.Password, "REDDIT_PASSWORD"},
		{&c.RedirectURL, "REDDIT_REDIRECT_URI"},
		{&c.UserAgent, "REDDIT_USER_AGENT"},
	}
	for _, e := range envs {
		if *e.dst == "" {
			*e.dst = os.Getenv(e.env)
		}
	}
	if c.UserAgent == "" {
		c.UserAgent = buildinfo.UserAgent()
	}
	if c.RedirectURL == "" {
		c.RedirectURL = "http://localhost:5000/auth/reddit/callback"
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
}

// Validate checks credential pairing and URLs.
func (c Config) Validate() error {
	if (c.ClientID == "") != (c.ClientSecret == "") {
		return fmt.Errorf("reddit.client_id and reddit.client_secret must be set together")
	}
	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("reddit.username and reddit.password must be set together")
	}
	for name, raw := range map[string]string{"api_url": c.APIURL, "auth_url": c.AuthURL, "token_url": c.TokenURL, "redirect_url": c.RedirectURL} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("reddit.%s: %w", name, err)
		}
	}
	return nil
}
