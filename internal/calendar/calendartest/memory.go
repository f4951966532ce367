// Package calendartest provides an in-process calendar backend for
// tests of packages built on [calendar.Service].
package calendartest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nugget/steward/internal/calendar"
)

// Memory is an in-process [calendar.Backend].
type Memory struct {
	mu     sync.Mutex
	events map[string]calendar.Event
	order  []string
	seq    int
	series map[string]bool

	// Created records every event passed to Create, in order.
	Created []calendar.Event
}

// NewMemory returns a Memory backend seeded with events. Seeded events
// without an ID are assigned one.
func NewMemory(events ...calendar.Event) *Memory {
	m := &Memory{events: make(map[string]calendar.Event), series: make(map[string]bool)}
	for _, e := range events {
		m.add(e)
	}
	return m
}

func (m *Memory) add(e calendar.Event) calendar.Event {
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("/calendars/memory/%d.ics", m.seq)
	}
	m.events[e.ID] = e
	m.order = append(m.order, e.ID)
	return e
}

// Events returns stored events overlapping [start, end).
func (m *Memory) Events(_ context.Context, start, end time.Time) ([]calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []calendar.Event
	for _, id := range m.order {
		if e, ok := m.events[id]; ok && e.Overlaps(start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Create stores ev under a generated id.
func (m *Memory) Create(_ context.Context, ev calendar.Event) (calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = ""
	ev = m.add(ev)
	ev.Link = "memory://" + ev.ID
	m.events[ev.ID] = ev
	m.Created = append(m.Created, ev)
	return ev, nil
}

// MarkRecurring makes Delete refuse id as a whole recurring series.
func (m *Memory) MarkRecurring(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[id] = true
}

// Delete removes an event.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return calendar.ErrNotFound
	}
	if m.series[id] {
		return calendar.ErrRecurringSeries
	}
	delete(m.events, id)
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
