package opstate

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get("session", "last_login")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string", val)
	}
}

func TestSetGetDelete(t *testing.T) {
	s := testStore(t)

	if err := s.Set("session", "provider", "claude"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set("session", "provider", "gemini"); err != nil {
		t.Fatalf("Set() upsert error: %v", err)
	}
	val, err := s.Get("session", "provider")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "gemini" {
		t.Errorf("Get() = %q, want %q", val, "gemini")
	}

	if err := s.Delete("session", "provider"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete("session", "provider"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
	if val, _ := s.Get("session", "provider"); val != "" {
		t.Errorf("Get() after delete = %q, want empty", val)
	}
}

func TestListIsolatesNamespaces(t *testing.T) {
	s := testStore(t)

	s.Set("notified", "a", "1")
	s.Set("notified", "b", "2")
	s.Set("other", "c", "3")

	got, err := s.List("notified")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Errorf("List() = %v, want {a:1 b:2}", got)
	}

	empty, err := s.List("nothing")
	if err != nil {
		t.Fatalf("List(empty) error: %v", err)
	}
	if empty == nil {
		t.Error("List(empty) returned nil map")
	}
}

func TestJSONHelpers(t *testing.T) {
	s := testStore(t)

	var domains []string
	ok, err := s.GetJSON("session", "exclusions", &domains)
	if err != nil || ok {
		t.Fatalf("GetJSON(missing) = %v, %v; want false, nil", ok, err)
	}

	if err := s.SetJSON("session", "exclusions", []string{"example.com"}); err != nil {
		t.Fatalf("SetJSON() error: %v", err)
	}
	ok, err = s.GetJSON("session", "exclusions", &domains)
	if err != nil || !ok {
		t.Fatalf("GetJSON() = %v, %v", ok, err)
	}
	if len(domains) != 1 || domains[0] != "example.com" {
		t.Errorf("domains = %v", domains)
	}

	s.Set("session", "broken", "{not json")
	if _, err := s.GetJSON("session", "broken", &domains); err == nil {
		t.Error("GetJSON(broken) should fail")
	}
}

func TestUpdate(t *testing.T) {
	s := testStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update("counter", "n", func(cur string) (string, error) {
				return cur + "x", nil
			})
			if err != nil {
				t.Errorf("Update() error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get("counter", "n")
	if len(got) != 10 {
		t.Errorf("value = %q, want 10 marks", got)
	}
}

func TestUpdateNoChangeAndError(t *testing.T) {
	s := testStore(t)
	s.Set("ns", "k", "keep")

	if err := s.Update("ns", "k", func(string) (string, error) { return "", ErrNoChange }); err != nil {
		t.Fatalf("Update(ErrNoChange) error: %v", err)
	}
	boom := errors.New("boom")
	if err := s.Update("ns", "k", func(string) (string, error) { return "lost", boom }); !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}
	if got, _ := s.Get("ns", "k"); got != "keep" {
		t.Errorf("value = %q, want %q", got, "keep")
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")

	s1, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(1): %v", err)
	}
	if err := s1.Set("reddit", "token", "abc"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	s1.Close()

	s2, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(2): %v", err)
	}
	defer s2.Close()

	if val, _ := s2.Get("reddit", "token"); val != "abc" {
		t.Errorf("Get() after reopen = %q, want %q", val, "abc")
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	if _, err := NewStore("/nonexistent/path/db.sqlite"); err == nil {
		t.Error("NewStore() should fail for invalid path")
	}
}
