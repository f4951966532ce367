package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nugget/steward/internal/calendar"
)

const maxFreeSlots = 10

func (h *handlers) getCalendarEvents(ctx context.Context, args Args) (any, error) {
	events, err := h.Calendar.Events(ctx, args.Int("days_ahead", 7))
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return events, nil
}

func (h *handlers) findFreeTimes(ctx context.Context, args Args) (any, error) {
	minutes := args.Int("duration_minutes", 60)
	if minutes <= 0 {
		return Error("duration_minutes must be positive"), nil
	}
	slots, err := h.Calendar.FreeSlots(ctx, args.Int("days_ahead", 7), time.Duration(minutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	if len(slots) > maxFreeSlots {
		slots = slots[:maxFreeSlots]
	}
	if slots == nil {
		slots = []calendar.Slot{}
	}
	return slots, nil
}

type conflictView struct {
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
}

type priorityWarning struct {
	Warning   string         `json:"warning"`
	Conflicts []conflictView `json:"conflicts"`
	Message   string         `json:"message"`
}

type createdEvent struct {
	Success      bool   `json:"success"`
	EventID      string `json:"event_id"`
	Link         string `json:"link"`
	ScheduledFor string `json:"scheduled_for"`
}

// createCalendarEvent refuses to double-book over priority events; the
// model is expected to relay the warning and let the user decide.
func (h *handlers) createCalendarEvent(ctx context.Context, args Args) (any, error) {
	loc := h.Calendar.Location()
	start, err := calendar.ParseTime(args.String("start_time"), loc)
	if err != nil {
		return Error("invalid start_time: " + err.Error()), nil
	}
	minutes := args.Int("duration_minutes", 0)
	if minutes <= 0 {
		return Error("duration_minutes must be positive"), nil
	}
	duration := time.Duration(minutes) * time.Minute

	conflicts, err := h.Calendar.Conflicts(ctx, start, start.Add(duration))
	if err != nil {
		return nil, fmt.Errorf("check conflicts: %w", err)
	}
	if priority := PriorityEvents(conflicts); len(priority) > 0 {
		views := make([]conflictView, len(priority))
		for i, e := range priority {
			views[i] = conflictView{Summary: e.Summary, Start: e.Start}
		}
		h.logger.Info("event creation blocked by priority conflict",
			"summary", args.String("summary"), "start", start, "conflicts", len(views))
		return priorityWarning{
			Warning:   "PRIORITY CONFLICT DETECTED",
			Conflicts: views,
			Message:   "This time conflicts with important events. Consider rescheduling.",
		}, nil
	}

	ev, err := h.Calendar.Create(ctx, calendar.NewEvent{
		Summary:     args.String("summary"),
		Start:       start,
		Duration:    duration,
		Description: args.String("description"),
		Location:    args.String("location"),
	})
	if err != nil {
		return nil, err
	}
	return createdEvent{
		Success:      true,
		EventID:      ev.ID,
		Link:         ev.Link,
		ScheduledFor: displayTime(ev.Start.In(loc)),
	}, nil
}

type conflictReport struct {
	HasConflicts         bool             `json:"has_conflicts"`
	Conflicts            []calendar.Event `json:"conflicts"`
	HasPriorityConflicts bool             `json:"has_priority_conflicts"`
	PriorityConflicts    []calendar.Event `json:"priority_conflicts"`
}

func (h *handlers) checkConflicts(ctx context.Context, args Args) (any, error) {
	loc := h.Calendar.Location()
	start, err := calendar.ParseTime(args.String("start_time"), loc)
	if err != nil {
		return Error("invalid start_time: " + err.Error()), nil
	}
	end, err := calendar.ParseTime(args.String("end_time"), loc)
	if err != nil {
		return Error("invalid end_time: " + err.Error()), nil
	}
	conflicts, err := h.Calendar.Conflicts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []calendar.Event{}
	}
	priority := PriorityEvents(conflicts)
	return conflictReport{
		HasConflicts:         len(conflicts) > 0,
		Conflicts:            conflicts,
		HasPriorityConflicts: len(priority) > 0,
		PriorityConflicts:    priority,
	}, nil
}

type foundEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Start       time.Time `json:"start"`
	Description string    `json:"description"`
}

type findResult struct {
	Found  int          `json:"found"`
	Events []foundEvent `json:"events"`
}

func (h *handlers) findEvent(ctx context.Context, args Args) (any, error) {
	matches, err := h.Calendar.FindByName(ctx, args.String("search_term"), args.Int("days_ahead", 30))
	if err != nil {
		return nil, err
	}
	out := findResult{Found: len(matches), Events: make([]foundEvent, len(matches))}
	for i, e := range matches {
		out.Events[i] = foundEvent{
			ID:          e.ID,
			Summary:     e.Summary,
			Start:       e.Start,
			Description: truncateRunes(e.Description, 100),
		}
	}
	return out, nil
}

type deleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *handlers) deleteEvent(ctx context.Context, args Args) (any, error) {
	id := args.String("event_id")
	label := nonEmpty(args.String("event_summary"), id)
	if err := h.Calendar.Delete(ctx, id); err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			return deleteResult{
				Message: fmt.Sprintf("Failed to delete event: %s. It may have already been deleted or the ID is invalid.", label),
			}, nil
		}
		if errors.Is(err, calendar.ErrRecurringSeries) {
			return deleteResult{
				Message: fmt.Sprintf("Failed to delete event: %s is a recurring series. Use find_event and delete the single occurrence by its id.", label),
			}, nil
		}
		return nil, err
	}
	return deleteResult{Success: true, Message: "Successfully deleted event: " + label}, nil
}
