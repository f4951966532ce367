package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nugget/steward/internal/agent"
	"github.com/nugget/steward/internal/api"
	"github.com/nugget/steward/internal/buildinfo"
	"github.com/nugget/steward/internal/connwatch"
	"github.com/nugget/steward/internal/monitor"
	"github.com/nugget/steward/internal/mqtt"
	"github.com/nugget/steward/internal/tools"
)

// runServe handles the "steward serve" subcommand. It starts the API
// server, the background monitor and, when configured, the MQTT
// publisher, then blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The monitor and MQTT publisher stop; MQTT announces offline
//  3. The HTTP server drains in-flight requests
//  4. Connections and the state store are closed via defers
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stdout, cfg, false)
	logger.Info("starting Steward", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "data_dir", cfg.DataDir)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if prev, ok := a.recordLogin(); ok {
		logger.Info("previous login", "at", prev)
	}

	a.watchServices(ctx)
	sessions := agent.NewSessions(a.newEngine, cfg.Agent.SessionIdleTTL)

	var wg sync.WaitGroup

	// --- MQTT publisher ---
	var notifier monitor.Notifier = monitor.LogNotifier{Logger: logger.With("component", "monitor")}
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(a.state)
		if err != nil {
			return err
		}
		logger.Info("mqtt instance ID loaded", "instance_id", instanceID)

		tokens := mqtt.NewDailyTokens(cfg.Agent.Location())
		a.onUsage = tokens.Record

		mqttPub = mqtt.New(cfg.MQTT, instanceID, tokens, &mqttStats{app: a, sessions: sessions}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()

		a.watch.Watch(ctx, connwatch.WatcherConfig{
			Name:    "mqtt",
			Probe:   connwatch.PingProbe(mqttPub),
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})
		notifier = mqttPub

		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
			"interval", cfg.MQTT.PublishInterval,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// --- Background monitor ---
	switch {
	case cfg.Monitor.Disabled:
		logger.Info("background monitor disabled")
	case a.calendar == nil:
		logger.Info("background monitor idle (calendar not configured)")
	default:
		mon, err := monitor.New(cfg.Monitor, a.calendar, notifier, a.state, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			mon.Run(ctx)
		}()
	}

	// --- API server ---
	opts := api.Options{
		Address:      cfg.Listen.Address,
		Port:         cfg.Listen.Port,
		Sessions:     sessions,
		Providers:    a.factory,
		Session:      a.session,
		Health:       a.watch,
		Capabilities: a.capabilities,
		Logger:       logger,
	}
	if a.calendar != nil {
		opts.Calendar = a.calendar
	}
	if a.mail != nil {
		opts.Mail = a.mail
	}
	if a.news != nil {
		opts.News = a.news
	}
	if a.reddit != nil {
		opts.Reddit = a.reddit
		opts.RedditAuth = a.redditAuth
	}
	server := api.NewServer(opts)

	logger.Info("capabilities", capabilityAttrs(a.capabilities())...)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		// Publish MQTT offline status before disconnecting.
		if mqttPub != nil {
			if err := mqttPub.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
	}()

	// Start blocks until the server is shut down.
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	wg.Wait()
	logger.Info("Steward stopped")
	return nil
}

func capabilityAttrs(caps map[tools.Service]tools.Capability) []any {
	attrs := make([]any, 0, 2*len(caps))
	for _, svc := range []tools.Service{tools.ServiceCalendar, tools.ServiceEmail, tools.ServiceNews, tools.ServiceReddit} {
		attrs = append(attrs, string(svc), caps[svc].String())
	}
	return attrs
}

// mqttStats bridges the app to the MQTT publisher's [mqtt.StatsSource].
type mqttStats struct {
	app      *app
	sessions *agent.Sessions
}

func (s *mqttStats) Uptime() time.Duration   { return buildinfo.Uptime() }
func (s *mqttStats) Version() string         { return buildinfo.Version }
func (s *mqttStats) DefaultProvider() string { return s.app.factory.Effective() }
func (s *mqttStats) ActiveSessions() int     { return s.sessions.Len() }
