package mqtt

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds the broker connection. It is embedded in the top-level
// Steward config under the "mqtt" YAML key.
type Config struct {
	// Broker is the broker URL (mqtt://, mqtts://, tcp:// or ssl://).
	// Falls back to MQTT_BROKER.
	Broker string `yaml:"broker"`

	// Username and Password fall back to MQTT_USERNAME and
	// MQTT_PASSWORD.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DeviceName names this instance in topics and in Home Assistant.
	// Default: "steward".
	DeviceName string `yaml:"device_name"`

	// TopicPrefix is the root of every Steward topic. Default: "steward".
	TopicPrefix string `yaml:"topic_prefix"`

	// DiscoveryPrefix is Home Assistant's discovery root. Default:
	// "homeassistant".
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// PublishInterval is how often sensor states are pushed. Default: 60s.
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// Configured reports whether a broker is set.
func (c Config) Configured() bool {
	return c.Broker != ""
}

// ApplyDefaults fills unset fields from the environment and defaults.
func (c *Config) ApplyDefaults() {
	if c.Broker == "" {
		c.Broker = os.Getenv("MQTT_BROKER")
	}
	if c.Username == "" {
		c.Username = os.Getenv("MQTT_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("MQTT_PASSWORD")
	}
	if c.DeviceName == "" {
		c.DeviceName = "steward"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "steward"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.PublishInterval == 0 {
		c.PublishInterval = 60 * time.Second
	}
}

// Validate checks the broker URL when one is configured.
func (c Config) Validate() error {
	if !c.Configured() {
		return nil
	}
	u, err := url.Parse(c.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
	default:
		return fmt.Errorf("mqtt.broker %q: unsupported scheme %q", c.Broker, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mqtt.broker %q has no host", c.Broker)
	}
	if c.PublishInterval < time.Second {
		return fmt.Errorf("mqtt.publish_interval %s is too short (minimum 1s)", c.PublishInterval)
	}
	return nil
}
