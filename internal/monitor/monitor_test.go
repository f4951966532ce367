package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/calendar/calendartest"
	"github.com/nugget/steward/internal/opstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type note struct {
	title, message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.notes = append(r.notes, note{title, message})
	return nil
}

func (r *recordingNotifier) all() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notes...)
}

func testMonitor(t *testing.T, now time.Time, events ...calendar.Event) (*Monitor, *recordingNotifier, *opstate.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := opstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := calendar.NewService(calendartest.NewMemory(events...), time.UTC, logger)
	n := &recordingNotifier{}
	cfg := Config{}
	cfg.ApplyDefaults()
	m, err := New(cfg, svc, n, store, logger)
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	return m, n, store
}

func event(summary string, start time.Time, d time.Duration) calendar.Event {
	return calendar.Event{Summary: summary, Start: start, End: start.Add(d)}
}

func TestCheckPriorityEvents_NotifiesOnce(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	m, n, _ := testMonitor(t, now,
		event("Interview with Acme", now.Add(4*time.Hour), time.Hour),
		event("Lunch", now.Add(2*time.Hour), time.Hour),
		event("Flight to Denver", now.Add(48*time.Hour), 3*time.Hour),
	)
	ctx := context.Background()

	sent, err := m.CheckPriorityEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	notes := n.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Important Event Coming Up", notes[0].title)
	assert.Equal(t, "Interview with Acme at Wednesday Jan 15, 02:00 PM", notes[0].message)

	sent, err = m.CheckPriorityEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "an announced event is not announced again")
	assert.Len(t, n.all(), 1)
}

func TestCheckPriorityEvents_SkipsEventsInProgress(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	m, n, _ := testMonitor(t, now, event("Board meeting", now.Add(-30*time.Minute), time.Hour))

	sent, err := m.CheckPriorityEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, n.all())
}

func TestCheckPriorityEvents_RetriesAfterFailedDelivery(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	m, n, _ := testMonitor(t, now, event("Project deadline", now.Add(time.Hour), time.Hour))
	ctx := context.Background()

	n.err = errors.New("broker down")
	sent, err := m.CheckPriorityEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	n.err = nil
	sent, err = m.CheckPriorityEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestCheckPriorityEvents_PrunesOldMarks(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	m, _, store := testMonitor(t, now)

	stale := map[string]time.Time{
		"/old.ics@2025-01-10T09:00:00Z":    now.Add(-5 * 24 * time.Hour),
		"/recent.ics@2025-01-15T08:00:00Z": now.Add(-time.Hour),
	}
	require.NoError(t, store.SetJSON(stateNamespace, keyNotified, stale))

	_, err := m.CheckPriorityEvents(context.Background())
	require.NoError(t, err)

	var got map[string]time.Time
	ok, err := store.GetJSON(stateNamespace, keyNotified, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "/recent.ics@2025-01-15T08:00:00Z")
}

func TestCheckDailySummary(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	events := []calendar.Event{
		event("Standup", day.Add(9*time.Hour), 15*time.Minute),
		event("Dentist", day.Add(15*time.Hour), time.Hour),
		event("Tomorrow thing", day.Add(33*time.Hour), time.Hour),
	}

	t.Run("before the configured time", func(t *testing.T) {
		m, n, _ := testMonitor(t, day.Add(7*time.Hour+59*time.Minute), events...)
		sent, err := m.CheckDailySummary(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Empty(t, n.all())
	})

	t.Run("once per day", func(t *testing.T) {
		m, n, store := testMonitor(t, day.Add(8*time.Hour), events...)
		ctx := context.Background()

		sent, err := m.CheckDailySummary(ctx)
		require.NoError(t, err)
		assert.True(t, sent)

		notes := n.all()
		require.Len(t, notes, 1)
		assert.Equal(t, "Daily Summary", notes[0].title)
		assert.Equal(t, "You have 2 events today:\n• Standup at 09:00 AM\n• Dentist at 03:00 PM", notes[0].message)

		sent, err = m.CheckDailySummary(ctx)
		require.NoError(t, err)
		assert.False(t, sent)

		var date string
		_, err = store.GetJSON(stateNamespace, keySummaryDate, &date)
		require.NoError(t, err)
		assert.Equal(t, "2025-01-15", date)

		m.now = func() time.Time { return day.Add(32 * time.Hour) }
		sent, err = m.CheckDailySummary(ctx)
		require.NoError(t, err)
		assert.True(t, sent, "a new day gets a new summary")
		assert.True(t, strings.HasPrefix(n.all()[1].message, "You have 1 event today:"))
	})

	t.Run("empty day is silent", func(t *testing.T) {
		m, n, store := testMonitor(t, day.Add(9*time.Hour))
		sent, err := m.CheckDailySummary(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Empty(t, n.all())

		var date string
		_, err = store.GetJSON(stateNamespace, keySummaryDate, &date)
		require.NoError(t, err)
		assert.Equal(t, "2025-01-15", date)
	})

	t.Run("failed delivery is retried", func(t *testing.T) {
		m, n, _ := testMonitor(t, day.Add(8*time.Hour), events...)
		n.err = errors.New("broker down")
		_, err := m.CheckDailySummary(context.Background())
		require.Error(t, err)

		n.err = nil
		sent, err := m.CheckDailySummary(context.Background())
		require.NoError(t, err)
		assert.True(t, sent)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	now := time.Now().UTC()
	m, n, _ := testMonitor(t, now, event("Urgent call", now.Add(time.Hour), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(n.all()) >= 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfig(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	assert.Equal(t, 30*time.Minute, c.CheckInterval)
	assert.Equal(t, 24*time.Hour, c.Lookahead)
	assert.Equal(t, "08:00", c.DailySummaryAt)
	assert.NoError(t, c.Validate())

	c.DailySummaryAt = "8am"
	assert.Error(t, c.Validate())

	c.DailySummaryAt = "07:30"
	c.CheckInterval = time.Second
	assert.Error(t, c.Validate())
}

func TestLogNotifier(t *testing.T) {
	var buf strings.Builder
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), "Daily Summary", "You have no events today"))
	assert.Contains(t, buf.String(), "title=\"Daily Summary\"")
}
