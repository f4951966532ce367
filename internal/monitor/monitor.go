// Package monitor watches the calendar in the background. It announces
// priority events coming up within the look-ahead window, once per
// occurrence, and sends a summary of the day's events each morning.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/prompts"
	"github.com/nugget/steward/internal/tools"
)

const (
	stateNamespace = "monitor"
	keyNotified    = "notified"
	keySummaryDate = "summary_date"

	// tick is the scheduling resolution.
	tick = time.Minute

	// notifiedRetention keeps notified marks this long after the event
	// ends.
	notifiedRetention = 24 * time.Hour
)

// Calendar is the read side of the calendar the monitor needs.
// *calendar.Service satisfies it.
type Calendar interface {
	Location() *time.Location
	Between(ctx context.Context, start, end time.Time) ([]calendar.Event, error)
}

// Notifier delivers a notification to the owner.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// State persists what has already been announced. *opstate.Store
// satisfies it.
type State interface {
	GetJSON(namespace, key string, v any) (bool, error)
	SetJSON(namespace, key string, v any) error
}

// LogNotifier writes notifications to the log. It is used when no
// broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the notification.
func (n LogNotifier) Notify(_ context.Context, title, message string) error {
	n.Logger.Info("notification", "title", title, "message", message)
	return nil
}

// Monitor runs the priority-event and daily-summary checks.
type Monitor struct {
	cfg      Config
	cal      Calendar
	notifier Notifier
	state    State
	logger   *slog.Logger
	now      func() time.Time

	summaryHour   int
	summaryMinute int

	// mu guards the persisted marks against concurrent checks.
	mu sync.Mutex
}

// New creates a monitor. cfg must have defaults applied.
func New(cfg Config, cal Calendar, notifier Notifier, state State, logger *slog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, m, _ := parseClock(cfg.DailySummaryAt)
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:           cfg,
		cal:           cal,
		notifier:      notifier,
		state:         state,
		logger:        logger.With("component", "monitor"),
		now:           time.Now,
		summaryHour:   h,
		summaryMinute: m,
	}, nil
}

// Run checks immediately, then on schedule until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("background monitor started",
		"check_interval", m.cfg.CheckInterval,
		"daily_summary_at", m.cfg.DailySummaryAt,
	)

	m.runChecks(ctx, true)
	next := m.now().Add(m.cfg.CheckInterval)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("background monitor stopped")
			return
		case <-ticker.C:
			due := !m.now().Before(next)
			if due {
				next = m.now().Add(m.cfg.CheckInterval)
			}
			m.runChecks(ctx, due)
		}
	}
}

func (m *Monitor) runChecks(ctx context.Context, priority bool) {
	if priority {
		if n, err := m.CheckPriorityEvents(ctx); err != nil {
			m.logger.Warn("priority event check failed", "error", err)
		} else if n > 0 {
			m.logger.Info("priority events announced", "count", n)
		}
	}
	if _, err := m.CheckDailySummary(ctx); err != nil {
		m.logger.Warn("daily summary failed", "error", err)
	}
}

// occurrenceKey identifies one occurrence; expanded recurrences share
// an event id.
func occurrenceKey(e calendar.Event) string {
	return e.ID + "@" + e.Start.UTC().Format(time.RFC3339)
}

// CheckPriorityEvents announces priority events starting within the
// look-ahead window that have not been announced before. It returns
// the number of notifications sent.
func (m *Monitor) CheckPriorityEvents(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	events, err := m.cal.Between(ctx, now, now.Add(m.cfg.Lookahead))
	if err != nil {
		return 0, err
	}

	notified := map[string]time.Time{}
	if _, err := m.state.GetJSON(stateNamespace, keyNotified, &notified); err != nil {
		return 0, fmt.Errorf("load notified events: %w", err)
	}
	if notified == nil {
		notified = map[string]time.Time{}
	}
	changed := false
	for k, end := range notified {
		if now.Sub(end) > notifiedRetention {
			delete(notified, k)
			changed = true
		}
	}

	sent := 0
	for _, e := range tools.PriorityEvents(events) {
		if e.Start.Before(now) {
			continue
		}
		key := occurrenceKey(e)
		if _, done := notified[key]; done {
			continue
		}
		msg := prompts.PriorityEventMessage(e.Summary, e.Start.In(m.cal.Location()))
		if err := m.notifier.Notify(ctx, prompts.PriorityEventTitle, msg); err != nil {
			m.logger.Warn("priority notification failed", "event", e.Summary, "error", err)
			continue
		}
		notified[key] = e.End
		changed = true
		sent++
	}

	if changed {
		if err := m.state.SetJSON(stateNamespace, keyNotified, notified); err != nil {
			return sent, fmt.Errorf("save notified events: %w", err)
		}
	}
	return sent, nil
}

// CheckDailySummary sends today's summary once the configured time has
// passed, at most once per local date. Days without events are marked
// done without a notification. It reports whether a summary was sent.
func (m *Monitor) CheckDailySummary(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc := m.cal.Location()
	now := m.now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	at := time.Date(now.Year(), now.Month(), now.Day(), m.summaryHour, m.summaryMinute, 0, 0, loc)
	if now.Before(at) {
		return false, nil
	}

	today := now.Format(time.DateOnly)
	var last string
	if _, err := m.state.GetJSON(stateNamespace, keySummaryDate, &last); err != nil {
		return false, fmt.Errorf("load summary date: %w", err)
	}
	if last == today {
		return false, nil
	}

	events, err := m.cal.Between(ctx, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return false, err
	}

	sent := false
	if len(events) > 0 {
		lines := make([]string, len(events))
		for i, e := range events {
			when := e.Start.In(loc).Format("03:04 PM")
			if e.AllDay {
				when = "all day"
			}
			lines[i] = fmt.Sprintf("%s at %s", e.Summary, when)
		}
		if err := m.notifier.Notify(ctx, prompts.DailySummaryTitle, prompts.DailySummaryMessage(lines)); err != nil {
			return false, fmt.Errorf("send daily summary: %w", err)
		}
		sent = true
	}

	if err := m.state.SetJSON(stateNamespace, keySummaryDate, today); err != nil {
		return sent, fmt.Errorf("save summary date: %w", err)
	}
	return sent, nil
}
