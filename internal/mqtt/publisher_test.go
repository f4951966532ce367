package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/opstate"
)

func TestLoadOrCreateInstanceID(t *testing.T) {
	store, err := opstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	first, err := LoadOrCreateInstanceID(store)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if parts := strings.Split(first, "-"); len(parts) != 5 {
		t.Errorf("id %q does not look like a UUID", first)
	}

	second, err := LoadOrCreateInstanceID(store)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("second = %q, want stable %q", second, first)
	}
}

type failingKV struct{}

func (failingKV) Get(string, string) (string, error) { return "", errors.New("disk gone") }
func (failingKV) Set(string, string, string) error   { return nil }

func TestLoadOrCreateInstanceID_StoreError(t *testing.T) {
	if _, err := LoadOrCreateInstanceID(failingKV{}); err == nil {
		t.Error("expected error from failing store")
	}
}

func TestClientID(t *testing.T) {
	got := clientID("01950c2e-7d1a-7b3c-9f00-1234567890ab")
	if got != "steward-1234567890ab" {
		t.Errorf("clientID = %q", got)
	}
	if got := clientID("short"); got != "steward-short" {
		t.Errorf("clientID(short) = %q", got)
	}
}

func testConfig() Config {
	cfg := Config{Broker: "mqtt://localhost:1883", DeviceName: "den"}
	cfg.ApplyDefaults()
	return cfg
}

func TestPublisher_TopicPaths(t *testing.T) {
	p := New(testConfig(), "test-id", nil, nil, nil)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", p.availabilityTopic(), "steward/den/availability"},
		{"notifications", p.notificationsTopic(), "steward/den/notifications"},
		{"state", p.stateTopic("uptime"), "steward/den/uptime/state"},
		{"discovery", p.discoveryTopic("uptime"), "homeassistant/sensor/den/uptime/config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublisher_SensorDefinitions(t *testing.T) {
	p := New(testConfig(), "inst-1", nil, nil, nil)
	defs := p.sensorDefinitions()
	if len(defs) != 6 {
		t.Fatalf("got %d sensors, want 6", len(defs))
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.config.UniqueID] {
			t.Errorf("duplicate unique_id %s", d.config.UniqueID)
		}
		seen[d.config.UniqueID] = true
		if d.config.StateTopic != p.stateTopic(d.entity) {
			t.Errorf("%s state topic = %s", d.entity, d.config.StateTopic)
		}
		if d.config.Device.Identifiers[0] != "inst-1" {
			t.Errorf("%s device identifiers = %v", d.entity, d.config.Device.Identifiers)
		}
		if _, err := json.Marshal(d.config); err != nil {
			t.Errorf("%s: %v", d.entity, err)
		}
	}
	if !seen["inst-1_tokens_today"] {
		t.Error("tokens_today sensor missing")
	}
}

type fakeStats struct{}

func (fakeStats) Uptime() time.Duration   { return 90*time.Second + 400*time.Millisecond }
func (fakeStats) Version() string         { return "1.2.3" }
func (fakeStats) DefaultProvider() string { return "claude" }
func (fakeStats) ActiveSessions() int     { return 3 }

func TestPublisher_States(t *testing.T) {
	tokens := NewDailyTokens(time.UTC)
	tokens.Record(llm.Usage{InputTokens: 10, OutputTokens: 5})
	p := New(testConfig(), "inst", tokens, fakeStats{}, nil)

	got := p.states()
	want := map[string]string{
		"uptime":            "1m30s",
		"version":           "1.2.3",
		"default_provider":  "claude",
		"active_sessions":   "3",
		"tokens_today":      "15",
		"last_notification": "never",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestPublisher_NotifyBeforeStart(t *testing.T) {
	p := New(testConfig(), "inst", nil, nil, nil)
	if err := p.Notify(context.Background(), "t", "m"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Notify() = %v, want ErrNotConnected", err)
	}
	if err := p.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() = %v, want ErrNotConnected", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() before Start = %v", err)
	}
}

func TestConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	var empty Config
	empty.ApplyDefaults()
	if empty.Configured() {
		t.Error("empty config should not be configured")
	}
	if err := empty.Validate(); err != nil {
		t.Errorf("unconfigured Validate() = %v", err)
	}

	t.Setenv("MQTT_BROKER", "mqtts://broker.example.com:8883")
	var env Config
	env.ApplyDefaults()
	if !env.Configured() || env.DeviceName != "steward" || env.PublishInterval != time.Minute {
		t.Errorf("defaults = %+v", env)
	}
	if err := env.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	bad := testConfig()
	bad.Broker = "http://broker"
	if err := bad.Validate(); err == nil {
		t.Error("http scheme should be rejected")
	}
}
