package calendar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nugget/steward/internal/calendar"
	"github.com/nugget/steward/internal/calendar/calendartest"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func testService(t *testing.T, now time.Time, events ...calendar.Event) (*calendar.Service, *calendartest.Memory) {
	t.Helper()
	mem := calendartest.NewMemory(events...)
	svc := calendar.NewService(mem, now.Location(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	calendar.SetClock(svc, func() time.Time { return now })
	return svc, mem
}

func TestFreeSlots_SkipsBusyAndStartsTomorrow(t *testing.T) {
	loc := newYork(t)
	// Wednesday mid-morning: today's 09:00 has passed, so the scan
	// begins Thursday.
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	busy := calendar.Event{
		Summary: "Standup",
		Start:   time.Date(2025, 1, 16, 10, 0, 0, 0, loc),
		End:     time.Date(2025, 1, 16, 11, 0, 0, 0, loc),
	}
	svc, _ := testService(t, now, busy)

	slots, err := svc.FreeSlots(context.Background(), 1, time.Hour)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if len(slots) != 12 {
		t.Fatalf("got %d slots, want 12: %+v", len(slots), slots)
	}
	if got, want := slots[0].Display, "Thursday Jan 16, 09:00 AM - 10:00 AM ET"; got != want {
		t.Errorf("first display = %q, want %q", got, want)
	}
	if got := slots[1].Start; !got.Equal(time.Date(2025, 1, 16, 11, 0, 0, 0, loc)) {
		t.Errorf("second slot starts %v, want 11:00 (after the busy hour)", got)
	}
	last := slots[len(slots)-1]
	if !last.End.Equal(time.Date(2025, 1, 16, 17, 0, 0, 0, loc)) {
		t.Errorf("last slot ends %v, want 17:00", last.End)
	}
}

func TestFreeSlots_BusyAfternoonOnLastScannedDay(t *testing.T) {
	loc := newYork(t)
	// Wednesday 10:00 with a one-day scan covers all of Thursday, so an
	// afternoon meeting a full day out still blocks.
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	board := calendar.Event{
		Summary: "Board meeting",
		Start:   time.Date(2025, 1, 16, 14, 0, 0, 0, loc),
		End:     time.Date(2025, 1, 16, 15, 0, 0, 0, loc),
	}
	svc, _ := testService(t, now, board)

	slots, err := svc.FreeSlots(context.Background(), 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for _, sl := range slots {
		if board.Overlaps(sl.Start, sl.End) {
			t.Errorf("slot %s overlaps the board meeting", sl.Display)
		}
	}
	if len(slots) != 12 {
		t.Errorf("got %d slots, want 12", len(slots))
	}
}

func TestFreeSlots_WeekendsConsumeDays(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2025, 1, 17, 18, 0, 0, 0, loc) // Friday evening
	svc, _ := testService(t, now)

	slots, err := svc.FreeSlots(context.Background(), 3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15 (Monday only)", len(slots))
	}
	for _, s := range slots {
		if s.Start.Weekday() != time.Monday {
			t.Errorf("slot on %v, want Monday only", s.Start.Weekday())
		}
	}
}

func TestFreeSlots_AllDayEventsDoNotBlock(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2025, 1, 15, 8, 0, 0, 0, loc)
	holiday := calendar.Event{
		Summary: "Company offsite",
		Start:   time.Date(2025, 1, 15, 0, 0, 0, 0, loc),
		End:     time.Date(2025, 1, 16, 0, 0, 0, 0, loc),
		AllDay:  true,
	}
	svc, _ := testService(t, now, holiday)

	slots, err := svc.FreeSlots(context.Background(), 1, 90*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	// 09:00 through 15:30 inclusive on Wednesday.
	if len(slots) != 14 {
		t.Errorf("got %d slots, want 14", len(slots))
	}
}

func TestFreeSlots_RejectsNonPositiveDuration(t *testing.T) {
	svc, _ := testService(t, time.Now())
	if _, err := svc.FreeSlots(context.Background(), 7, 0); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestFindByName(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	at := func(day, hour int) time.Time { return time.Date(2025, 1, day, hour, 0, 0, 0, loc) }
	svc, _ := testService(t, now,
		calendar.Event{Summary: "Daily Standup", Start: at(16, 9), End: at(16, 10)},
		calendar.Event{Summary: "Sync", Description: "weekly STANDUP replacement", Start: at(17, 9), End: at(17, 10)},
		calendar.Event{Summary: "Lunch", Start: at(17, 12), End: at(17, 13)},
		calendar.Event{Summary: "Standup retro", Start: time.Date(2025, 3, 1, 9, 0, 0, 0, loc), End: time.Date(2025, 3, 1, 10, 0, 0, 0, loc)},
	)

	got, err := svc.FindByName(context.Background(), "standup", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2 (outside window excluded): %+v", len(got), got)
	}
	if got[0].Summary != "Daily Standup" || got[1].Summary != "Sync" {
		t.Errorf("matches = %q, %q", got[0].Summary, got[1].Summary)
	}
}

func TestConflictsAndCreateDelete(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	interview := calendar.Event{
		Summary: "Interview with Acme",
		Start:   time.Date(2025, 1, 16, 14, 0, 0, 0, loc),
		End:     time.Date(2025, 1, 16, 15, 0, 0, 0, loc),
	}
	svc, mem := testService(t, now, interview)
	ctx := context.Background()

	conflicts, err := svc.Conflicts(ctx, time.Date(2025, 1, 16, 14, 30, 0, 0, loc), time.Date(2025, 1, 16, 15, 30, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}

	// Touching intervals do not conflict.
	conflicts, err = svc.Conflicts(ctx, time.Date(2025, 1, 16, 15, 0, 0, 0, loc), time.Date(2025, 1, 16, 16, 0, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Errorf("adjacent event reported as conflict: %+v", conflicts)
	}

	if _, err := svc.Conflicts(ctx, now, now); err == nil {
		t.Error("expected error for empty window")
	}

	ev, err := svc.Create(ctx, calendar.NewEvent{Summary: "Dentist", Start: time.Date(2025, 1, 17, 9, 0, 0, 0, loc), Duration: 30 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" || !ev.End.Equal(ev.Start.Add(30*time.Minute)) {
		t.Errorf("created event = %+v", ev)
	}
	if len(mem.Created) != 1 {
		t.Errorf("backend saw %d creates", len(mem.Created))
	}

	if err := svc.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, ev.ID); !errors.Is(err, calendar.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestUpcoming(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	var events []calendar.Event
	for d := 20; d > 15; d-- {
		events = append(events, calendar.Event{Summary: "e", Start: time.Date(2025, 1, d, 9, 0, 0, 0, loc), End: time.Date(2025, 1, d, 10, 0, 0, 0, loc)})
	}
	svc, _ := testService(t, now, events...)

	got, err := svc.Upcoming(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
	if got[0].Start.Day() != 16 || got[2].Start.Day() != 18 {
		t.Errorf("not sorted by start: %v, %v", got[0].Start, got[2].Start)
	}
}
