package agent

import (
	"sync"
	"time"
)

// Builder creates the engine for a new session.
type Builder func() (*Engine, error)

type sessionEntry struct {
	engine   *Engine
	lastUsed time.Time
}

// Sessions maps session ids to independent engines. Sessions idle for
// longer than the idle TTL are dropped on the next Get.
type Sessions struct {
	build   Builder
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewSessions creates an empty session table. An idleTTL of zero or less
// keeps sessions until Reset.
func NewSessions(build Builder, idleTTL time.Duration) *Sessions {
	return &Sessions{
		build:   build,
		idleTTL: idleTTL,
		now:     time.Now,
		entries: make(map[string]*sessionEntry),
	}
}

// Get returns the engine for id, creating it on first use or after the
// previous one expired.
func (s *Sessions) Get(id string) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	if ent, ok := s.entries[id]; ok {
		ent.lastUsed = now
		return ent.engine, nil
	}
	e, err := s.build()
	if err != nil {
		return nil, err
	}
	s.entries[id] = &sessionEntry{engine: e, lastUsed: now}
	return e, nil
}

func (s *Sessions) evictLocked(now time.Time) {
	if s.idleTTL <= 0 {
		return
	}
	for id, ent := range s.entries {
		if now.Sub(ent.lastUsed) > s.idleTTL {
			delete(s.entries, id)
		}
	}
}

// Clear resets the history of id, if it exists.
func (s *Sessions) Clear(id string) bool {
	s.mu.Lock()
	ent, ok := s.entries[id]
	s.mu.Unlock()
	if ok {
		ent.engine.Clear()
	}
	return ok
}

// Reset drops every session so new ones pick up a changed provider or
// tool set.
func (s *Sessions) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
