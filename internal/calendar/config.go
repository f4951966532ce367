package calendar

import (
	"fmt"
	"net/url"
	"os"
)

// Config holds the CalDAV connection. It is embedded in the top-level
// Steward config under the "calendar" YAML key.
type Config struct {
	// URL is the CalDAV server endpoint (e.g.,
	// "https://caldav.fastmail.com/dav/"). Falls back to CALDAV_URL.
	URL string `yaml:"url"`

	// Username and Password authenticate with HTTP basic auth. Fall
	// back to CALDAV_USERNAME and CALDAV_PASSWORD.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CalendarPath names the collection directly. When empty the
	// collection is discovered from the user principal.
	CalendarPath string `yaml:"calendar_path"`

	// CalendarName selects a discovered calendar by display name.
	// Empty picks the first calendar that supports events.
	CalendarName string `yaml:"calendar_name"`
}

// Configured reports whether a CalDAV endpoint is set.
func (c Config) Configured() bool {
	return c.URL != ""
}

// ApplyDefaults fills unset fields from the environment.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = os.Getenv("CALDAV_URL")
	}
	if c.Username == "" {
		c.Username = os.Getenv("CALDAV_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("CALDAV_PASSWORD")
	}
	if c.CalendarPath == "" {
		c.CalendarPath = os.Getenv("CALDAV_CALENDAR_PATH")
	}
}

// Validate checks the endpoint when one is configured.
func (c Config) Validate() error {
	if !c.Configured() {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("calendar.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("calendar.url %q must use http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("calendar.url %q has no host", c.URL)
	}
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("calendar.username is required when calendar.password is set")
	}
	return nil
}
