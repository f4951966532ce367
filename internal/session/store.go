// Package session persists the small pieces of user state that outlive
// a conversation: the last-login mark, the email exclusion domains, and
// the preferred language-model provider. It is a typed facade over the
// operational state store.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nugget/steward/internal/opstate"
)

const (
	namespace     = "session"
	keyLastLogin  = "last_login"
	keyPrevLogin  = "previous_login"
	keyExclusions = "exclusion_domains"
	keyProvider   = "preferred_provider"
)

// ErrEmptyDomain is returned when a domain normalizes to nothing.
var ErrEmptyDomain = errors.New("domain must not be empty")

// Store reads and writes session state.
type Store struct {
	state *opstate.Store
	now   func() time.Time

	// mu serializes exclusion edits within the process. Across
	// processes the store's transaction gives last-writer-wins.
	mu sync.Mutex
}

// NewStore wraps an operational state store.
func NewStore(state *opstate.Store) *Store {
	return &Store{state: state, now: time.Now}
}

// LastLogin returns the recorded login time. ok is false when no login
// has been recorded.
func (s *Store) LastLogin() (t time.Time, ok bool, err error) {
	return s.loginMark(keyLastLogin)
}

// PreviousLogin returns the login before the most recent one. "New
// mail since login" is measured from this mark.
func (s *Store) PreviousLogin() (t time.Time, ok bool, err error) {
	return s.loginMark(keyPrevLogin)
}

func (s *Store) loginMark(key string) (time.Time, bool, error) {
	raw, err := s.state.Get(namespace, key)
	if err != nil || raw == "" {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s %q: %w", key, raw, err)
	}
	return t, true, nil
}

// RecordLogin stores the current time as the last login, moves the
// old mark to the previous-login slot, and returns it.
func (s *Store) RecordLogin() (prev time.Time, ok bool, err error) {
	prev, ok, err = s.LastLogin()
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		if err := s.state.Set(namespace, keyPrevLogin, prev.UTC().Format(time.RFC3339)); err != nil {
			return time.Time{}, false, err
		}
	}
	now := s.now().UTC().Format(time.RFC3339)
	if err := s.state.Set(namespace, keyLastLogin, now); err != nil {
		return time.Time{}, false, err
	}
	return prev, ok, nil
}

// NormalizeDomain lower-cases a domain and strips whitespace and any
// leading "@".
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimLeft(d, "@")
}

// ExclusionDomains returns the excluded sender domains, sorted.
func (s *Store) ExclusionDomains() ([]string, error) {
	var domains []string
	if _, err := s.state.GetJSON(namespace, keyExclusions, &domains); err != nil {
		return nil, err
	}
	if domains == nil {
		domains = []string{}
	}
	return domains, nil
}

// AddExclusionDomain adds a domain. added is false when it was already
// present. The resulting list is returned either way.
func (s *Store) AddExclusionDomain(domain string) (added bool, domains []string, err error) {
	d := NormalizeDomain(domain)
	if d == "" {
		return false, nil, ErrEmptyDomain
	}
	return s.editExclusions(func(cur []string) ([]string, bool) {
		if slices.Contains(cur, d) {
			return cur, false
		}
		next := append(slices.Clone(cur), d)
		slices.Sort(next)
		return next, true
	})
}

// RemoveExclusionDomain removes a domain. removed is false when it was
// not present.
func (s *Store) RemoveExclusionDomain(domain string) (removed bool, domains []string, err error) {
	d := NormalizeDomain(domain)
	if d == "" {
		return false, nil, ErrEmptyDomain
	}
	return s.editExclusions(func(cur []string) ([]string, bool) {
		i := slices.Index(cur, d)
		if i < 0 {
			return cur, false
		}
		return slices.Delete(slices.Clone(cur), i, i+1), true
	})
}

// editExclusions applies edit to the stored list inside one store
// transaction.
func (s *Store) editExclusions(edit func([]string) ([]string, bool)) (changed bool, domains []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.state.Update(namespace, keyExclusions, func(raw string) (string, error) {
		cur := []string{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &cur); err != nil {
				return "", fmt.Errorf("decode exclusion domains: %w", err)
			}
		}
		domains, changed = edit(cur)
		if !changed {
			return "", opstate.ErrNoChange
		}
		b, err := json.Marshal(domains)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
	if err != nil {
		return false, nil, err
	}
	return changed, domains, nil
}

// PreferredProvider returns the stored provider id, or "".
func (s *Store) PreferredProvider() (string, error) {
	return s.state.Get(namespace, keyProvider)
}

// SetPreferredProvider stores the provider id.
func (s *Store) SetPreferredProvider(id string) error {
	return s.state.Set(namespace, keyProvider, id)
}
