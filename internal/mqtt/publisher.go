package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// ErrNotConnected is returned by Notify before Start has created the
// connection.
var ErrNotConnected = errors.New("mqtt publisher not started")

// StatsSource supplies sensor values. The concrete adapter is wired in
// cmd/steward so this package does not depend on the API server.
type StatsSource interface {
	Uptime() time.Duration
	Version() string
	DefaultProvider() string
	ActiveSessions() int
}

// Notification is the JSON payload published for the owner.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher owns the broker connection.
type Publisher struct {
	cfg        Config
	instanceID string
	device     DeviceInfo
	tokens     *DailyTokens
	stats      StatsSource
	logger     *slog.Logger

	mu       sync.Mutex
	cm       *autopaho.ConnectionManager
	lastSent time.Time
}

// New creates a Publisher but does not connect. tokens and stats may
// be nil; their sensors then report zero values.
func New(cfg Config, instanceID string, tokens *DailyTokens, stats StatsSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		tokens:     tokens,
		stats:      stats,
		logger:     logger.With("component", "mqtt"),
	}
}

// Start connects and runs the sensor publish loop until ctx is
// cancelled. A broker that is down at startup is retried in the
// background.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(p.instanceID),
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" || brokerURL.Scheme == "wss" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.conn()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// Ping waits for the broker connection. It serves as the connwatch
// probe.
func (p *Publisher) Ping(ctx context.Context) error {
	cm := p.conn()
	if cm == nil {
		return ErrNotConnected
	}
	return cm.AwaitConnection(ctx)
}

// Notify publishes a notification for the owner (QoS 1, not retained).
func (p *Publisher) Notify(ctx context.Context, title, message string) error {
	cm := p.conn()
	if cm == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(Notification{Title: title, Message: message, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.notificationsTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	p.mu.Lock()
	p.lastSent = time.Now()
	p.mu.Unlock()
	p.logger.Debug("notification published", "title", title)
	return nil
}

func (p *Publisher) conn() *autopaho.ConnectionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cm
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) notificationsTopic() string {
	return p.baseTopic() + "/notifications"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(entity string) string {
	return p.cfg.DiscoveryPrefix + "/sensor/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entity string
	config SensorConfig
}

func (p *Publisher) sensor(entity, label, icon string) sensorDef {
	return sensorDef{
		entity: entity,
		config: SensorConfig{
			Name:              p.device.Name + " " + label,
			UniqueID:          p.instanceID + "_" + entity,
			StateTopic:        p.stateTopic(entity),
			AvailabilityTopic: p.availabilityTopic(),
			Device:            p.device,
			Icon:              icon,
		},
	}
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	uptime := p.sensor("uptime", "Uptime", "mdi:clock-outline")
	uptime.config.EntityCategory = "diagnostic"
	version := p.sensor("version", "Version", "mdi:tag")
	version.config.EntityCategory = "diagnostic"
	provider := p.sensor("default_provider", "Default Provider", "mdi:brain")
	provider.config.EntityCategory = "diagnostic"
	sessions := p.sensor("active_sessions", "Active Sessions", "mdi:chat-processing")
	sessions.config.StateClass = "measurement"
	tokens := p.sensor("tokens_today", "Tokens Today", "mdi:counter")
	tokens.config.StateClass = "total_increasing"
	tokens.config.UnitOfMeasurement = "tokens"
	last := p.sensor("last_notification", "Last Notification", "mdi:bell-ring")

	return []sensorDef{uptime, version, provider, sessions, tokens, last}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic(s.entity)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload", "entity", s.entity, "error", err)
			continue
		}
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed", "entity", s.entity, "topic", topic, "error", err)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("mqtt availability published", "status", status)
}

// --- Periodic state loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	p.publishStates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

// states computes the current sensor values.
func (p *Publisher) states() map[string]string {
	states := map[string]string{
		"uptime":            "0s",
		"version":           p.device.SWVersion,
		"default_provider":  "",
		"active_sessions":   "0",
		"tokens_today":      "0",
		"last_notification": "never",
	}
	if p.stats != nil {
		states["uptime"] = p.stats.Uptime().Truncate(time.Second).String()
		states["version"] = p.stats.Version()
		states["default_provider"] = p.stats.DefaultProvider()
		states["active_sessions"] = strconv.Itoa(p.stats.ActiveSessions())
	}
	if p.tokens != nil {
		in, out, _ := p.tokens.Snapshot()
		states["tokens_today"] = strconv.FormatInt(in+out, 10)
	}
	p.mu.Lock()
	if !p.lastSent.IsZero() {
		states["last_notification"] = p.lastSent.Format(time.RFC3339)
	}
	p.mu.Unlock()
	return states
}

func (p *Publisher) publishStates(ctx context.Context) {
	cm := p.conn()
	if cm == nil {
		return
	}
	states := p.states()
	for entity, value := range states {
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(entity),
			Payload: []byte(value),
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed", "entity", entity, "error", err)
		}
	}
	p.logger.Debug("mqtt sensor states published", "entities", len(states))
}
