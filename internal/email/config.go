package email

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the IMAP account. It is embedded in the top-level
// Steward config under the "email" YAML key.
type Config struct {
	// Host is the IMAP server hostname (e.g., "imap.gmail.com").
	// Falls back to IMAP_HOST.
	Host string `yaml:"host"`

	// Port is the IMAP server port. Default: 993 (IMAPS).
	Port int `yaml:"port"`

	// Username is the IMAP login, typically the email address.
	// Falls back to IMAP_USERNAME.
	Username string `yaml:"username"`

	// Password is the IMAP login password. Falls back to IMAP_PASSWORD.
	Password string `yaml:"password"`

	// TLS controls implicit TLS. Defaults to true unless the port is
	// 143.
	TLS bool `yaml:"tls"`

	// Address is the owner's own address. Messages from it are not
	// reported as new mail. Defaults to Username when that looks like
	// an address.
	Address string `yaml:"address"`
}

// Configured reports whether the minimum IMAP settings are present.
func (c Config) Configured() bool {
	return c.Host != "" && c.Username != ""
}

// ApplyDefaults fills zero-value fields from the environment and
// protocol conventions.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = os.Getenv("IMAP_HOST")
	}
	if c.Username == "" {
		c.Username = os.Getenv("IMAP_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("IMAP_PASSWORD")
	}
	if c.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("IMAP_PORT")); err == nil {
			c.Port = p
		} else {
			c.Port = 993
		}
	}
	if !c.TLS && c.Port != 143 {
		c.TLS = true
	}
	if c.Address == "" && strings.Contains(c.Username, "@") {
		c.Address = c.Username
	}
	c.Address = strings.ToLower(c.Address)
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Host == "" && c.Username == "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("email.host is required when email.username is set")
	}
	if c.Username == "" {
		return fmt.Errorf("email.username is required when email.host is set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("email.port %d out of range (1-65535)", c.Port)
	}
	return nil
}
