package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/steward/internal/agent"
	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/config"
	"github.com/nugget/steward/internal/connwatch"
	"github.com/nugget/steward/internal/email"
	"github.com/nugget/steward/internal/httpkit"
	"github.com/nugget/steward/internal/llm"
	"github.com/nugget/steward/internal/news"
	"github.com/nugget/steward/internal/opstate"
	"github.com/nugget/steward/internal/reddit"
	"github.com/nugget/steward/internal/session"
	"github.com/nugget/steward/internal/tools"
)

// app holds the collaborators shared by every command. Collaborators
// for unconfigured services stay nil.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	state    *opstate.Store
	session  *session.Store
	factory  *llm.Factory
	registry *tools.Registry

	calendar   *calendar.Service
	mail       *email.Client
	news       *news.Client
	reddit     *reddit.Client
	redditAuth *reddit.Auth

	// watch is set by serve; without it configured services count as
	// available.
	watch *connwatch.Manager

	// onUsage receives token usage from every engine.
	onUsage func(llm.Usage)
}

// newApp opens the state store and builds every configured
// collaborator. Nothing is dialed here; connections are made on first
// use or by connwatch.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	state, err := opstate.NewStore(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		state:   state,
		session: session.NewStore(state),
	}

	httpClient := httpkit.NewClient(httpkit.WithTimeout(cfg.LLM.RequestTimeout), httpkit.WithLogger(logger))
	a.factory = llm.NewFactory(cfg.LLM, a.session, httpClient, logger)

	loc := cfg.Agent.Location()
	if cfg.Calendar.Configured() {
		backend, err := calendar.NewCalDAV(cfg.Calendar, loc, httpkit.NewClient(), logger.With("component", "calendar"))
		if err != nil {
			state.Close()
			return nil, err
		}
		a.calendar = calendar.NewService(backend, loc, logger)
	}
	if cfg.Email.Configured() {
		a.mail = email.NewClient(cfg.Email, logger)
	}
	if cfg.News.Configured() {
		a.news = news.NewClient(cfg.News, httpkit.NewClient(), logger)
	}
	if cfg.Reddit.Configured() {
		a.redditAuth = reddit.NewAuth(cfg.Reddit, state, reddit.NewHTTPClient(cfg.Reddit), logger)
		a.reddit = reddit.NewClient(cfg.Reddit, a.redditAuth, logger)
	}

	a.registry, err = tools.NewAssistantRegistry(a.toolDeps())
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// toolDeps converts the collaborators to tool dependencies, keeping
// absent ones as untyped nils.
func (a *app) toolDeps() tools.Deps {
	d := tools.Deps{Session: a.session, Logger: a.logger}
	if a.calendar != nil {
		d.Calendar = a.calendar
	}
	if a.mail != nil {
		d.Mail = a.mail
	}
	if a.news != nil {
		d.News = a.news
	}
	if a.reddit != nil {
		d.Reddit = a.reddit
	}
	return d
}

// capabilities reports each service as unavailable when unconfigured,
// degraded when its watcher is not ready, and available otherwise.
func (a *app) capabilities() map[tools.Service]tools.Capability {
	configured := map[tools.Service]bool{
		tools.ServiceCalendar: a.calendar != nil,
		tools.ServiceEmail:    a.mail != nil,
		tools.ServiceNews:     a.news != nil,
		tools.ServiceReddit:   a.reddit != nil,
	}
	caps := make(map[tools.Service]tools.Capability, len(configured))
	for svc, ok := range configured {
		switch {
		case !ok:
			caps[svc] = tools.Unavailable
		case a.watch != nil:
			if ready, watched := a.watch.Ready(string(svc)); watched && !ready {
				caps[svc] = tools.Degraded
				continue
			}
			caps[svc] = tools.Available
		default:
			caps[svc] = tools.Available
		}
	}
	return caps
}

// newEngine builds a conversation on the effective provider with a
// snapshot of the current capabilities.
func (a *app) newEngine() (*agent.Engine, error) {
	id := a.factory.Effective()
	provider, err := a.factory.New(id)
	if err != nil {
		return nil, err
	}
	return agent.NewEngine(agent.Options{
		Provider: provider,
		Model:    a.factory.Model(id),
		Tools:    a.registry.Snapshot(a.capabilities()),
		Config:   a.cfg.Agent,
		Logger:   a.logger,
		OnUsage:  a.onUsage,
	})
}

// watchServices registers a connwatch watcher for each configured
// service that can be probed.
func (a *app) watchServices(ctx context.Context) {
	a.watch = connwatch.NewManager(a.logger)
	if a.calendar != nil {
		a.watch.Watch(ctx, connwatch.WatcherConfig{
			Name:    string(tools.ServiceCalendar),
			Probe:   connwatch.PingProbe(a.calendar),
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  a.logger,
		})
	}
	if a.mail != nil {
		a.watch.Watch(ctx, connwatch.WatcherConfig{
			Name:    string(tools.ServiceEmail),
			Probe:   connwatch.PingProbe(a.mail),
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  a.logger,
		})
	}
}

// recordLogin stores this start as the latest login and returns the
// previous one.
func (a *app) recordLogin() (time.Time, bool) {
	prev, ok, err := a.session.RecordLogin()
	if err != nil {
		a.logger.Warn("failed to record login", "error", err)
		return time.Time{}, false
	}
	return prev, ok
}

// Close releases connections and the state store.
func (a *app) Close() {
	if a.watch != nil {
		a.watch.Stop()
	}
	if a.mail != nil {
		if err := a.mail.Close(); err != nil {
			a.logger.Debug("imap close failed", "error", err)
		}
	}
	if err := a.state.Close(); err != nil {
		a.logger.Debug("state store close failed", "error", err)
	}
}
