// Package calendar provides the calendar operations the assistant's
// tools call: listing events, scanning for free slots, conflict checks,
// search, creation and deletion. Storage is abstracted behind
// [Backend]; the production backend speaks CalDAV.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when an event id does not resolve.
var ErrNotFound = errors.New("event not found")

// ErrRecurringSeries is returned when asked to delete a whole recurring
// series. Single occurrences are deleted by their occurrence id.
var ErrRecurringSeries = errors.New("event is a recurring series; delete individual occurrences by their id")

// Event is a single (possibly expanded recurring) calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// Overlaps reports whether the event intersects [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// Backend is the storage the Service reads and writes.
type Backend interface {
	// Events returns events overlapping [start, end).
	Events(ctx context.Context, start, end time.Time) ([]Event, error)
	// Create stores a new event and returns it with ID and Link set.
	Create(ctx context.Context, ev Event) (Event, error)
	// Delete removes an event by id.
	Delete(ctx context.Context, id string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Slot is a free interval offered to the user.
type Slot struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"`
}

// Working hours and scan granularity for free-slot search.
const (
	workStartHour = 9
	workEndHour   = 17
	slotStep      = 30 * time.Minute
)

// Service implements calendar operations in a fixed local timezone.
type Service struct {
	backend Backend
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a Service. loc is the zone used for working hours,
// display strings and offset-less timestamps.
func NewService(backend Backend, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, loc: loc, now: time.Now, logger: logger}
}

// Location returns the service's local timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Ping checks the backend.
func (s *Service) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

// Events lists events from now through daysAhead days, sorted by start.
func (s *Service) Events(ctx context.Context, daysAhead int) ([]Event, error) {
	now := s.now().In(s.loc)
	return s.between(ctx, now, now.AddDate(0, 0, daysAhead))
}

// Between lists events overlapping [start, end), sorted by start.
func (s *Service) Between(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.between(ctx, start, end)
}

// Upcoming returns at most limit events in the next 60 days.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]Event, error) {
	events, err := s.Events(ctx, 60)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Conflicts returns the events overlapping [start, end).
func (s *Service) Conflicts(ctx context.Context, start, end time.Time) ([]Event, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end time %s must be after start time %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return s.between(ctx, start, end)
}

// FindByName returns events within daysAhead whose title or
// description contains term, case-insensitively.
func (s *Service) FindByName(ctx context.Context, term string, daysAhead int) ([]Event, error) {
	events, err := s.Events(ctx, daysAhead)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	var matches []Event
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Summary), needle) ||
			strings.Contains(strings.ToLower(e.Description), needle) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// NewEvent describes an event to create.
type NewEvent struct {
	Summary     string
	Start       time.Time
	Duration    time.Duration
	Description string
	Location    string
}

// Create stores an event.
func (s *Service) Create(ctx context.Context, ne NewEvent) (Event, error) {
	if strings.TrimSpace(ne.Summary) == "" {
		return Event{}, fmt.Errorf("summary must not be empty")
	}
	if ne.Duration <= 0 {
		return Event{}, fmt.Errorf("duration must be positive")
	}
	start := ne.Start.In(s.loc)
	ev, err := s.backend.Create(ctx, Event{
		Summary:     ne.Summary,
		Description: ne.Description,
		Location:    ne.Location,
		Start:       start,
		End:         start.Add(ne.Duration),
	})
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("calendar event created", "id", ev.ID, "summary", ev.Summary, "start", ev.Start)
	return ev, nil
}

// Delete removes an event by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	s.logger.Info("calendar event deleted", "id", id)
	return nil
}

// FreeSlots scans weekday working hours (09:00-17:00 local) for
// duration-long gaps, stepping every 30 minutes. The scan starts at
// today's 09:00, or tomorrow's once today's has passed, and covers
// daysAhead calendar days. All-day events do not block slots.
func (s *Service) FreeSlots(ctx context.Context, daysAhead int, duration time.Duration) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	if daysAhead < 1 {
		return nil, nil
	}
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), workStartHour, 0, 0, 0, s.loc)
	if day.Before(now) {
		day = day.AddDate(0, 0, 1)
	}

	// Busy time must cover every scanned day through its close of
	// business, which runs past now+daysAhead once the scan starts
	// tomorrow.
	last := day.AddDate(0, 0, daysAhead-1)
	scanEnd := time.Date(last.Year(), last.Month(), last.Day(), workEndHour, 0, 0, 0, s.loc)
	events, err := s.between(ctx, day, scanEnd)
	if err != nil {
		return nil, err
	}
	var busy []Event
	for _, e := range events {
		if !e.AllDay {
			busy = append(busy, e)
		}
	}

	var slots []Slot
	for i := 0; i < daysAhead; i, day = i+1, day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), workEndHour, 0, 0, 0, s.loc)
		for start := day; !start.Add(duration).After(dayEnd); start = start.Add(slotStep) {
			end := start.Add(duration)
			if overlapsAny(busy, start, end) {
				continue
			}
			slots = append(slots, Slot{Start: start, End: end, Display: s.slotDisplay(start, end)})
		}
	}
	return slots, nil
}

func (s *Service) slotDisplay(start, end time.Time) string {
	return fmt.Sprintf("%s - %s %s", start.Format("Monday Jan 02, 03:04 PM"), end.Format("03:04 PM"), ZoneAbbrev(s.loc))
}

func (s *Service) between(ctx context.Context, start, end time.Time) ([]Event, error) {
	events, err := s.backend.Events(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		e.Start = e.Start.In(s.loc)
		e.End = e.End.In(s.loc)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func overlapsAny(events []Event, start, end time.Time) bool {
	for _, e := range events {
		if e.Overlaps(start, end) {
			return true
		}
	}
	return false
}
