package monitor

import (
	"fmt"
	"time"
)

// Config controls the background monitor. It is embedded in the
// top-level Steward config under the "monitor" YAML key.
type Config struct {
	// Disabled turns the monitor off.
	Disabled bool `yaml:"disabled"`

	// CheckInterval is how often upcoming priority events are checked.
	// Default: 30m.
	CheckInterval time.Duration `yaml:"check_interval"`

	// Lookahead is how far ahead priority events are announced.
	// Default: 24h.
	Lookahead time.Duration `yaml:"lookahead"`

	// DailySummaryAt is the local time of the morning summary, "HH:MM".
	// Default: "08:00".
	DailySummaryAt string `yaml:"daily_summary_at"`
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = 30 * time.Minute
	}
	if c.Lookahead == 0 {
		c.Lookahead = 24 * time.Hour
	}
	if c.DailySummaryAt == "" {
		c.DailySummaryAt = "08:00"
	}
}

// Validate checks intervals and the summary time.
func (c Config) Validate() error {
	if c.CheckInterval < time.Minute {
		return fmt.Errorf("monitor.check_interval %s is too short (minimum 1m)", c.CheckInterval)
	}
	if c.Lookahead <= 0 {
		return fmt.Errorf("monitor.lookahead must be positive")
	}
	if _, _, err := parseClock(c.DailySummaryAt); err != nil {
		return fmt.Errorf("monitor.daily_summary_at: %w", err)
	}
	return nil
}

// parseClock parses "HH:MM" in 24-hour time.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
