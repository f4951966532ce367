package session

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/steward/internal/opstate"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	state, err := opstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })
	return NewStore(state)
}

func TestRecordLogin(t *testing.T) {
	s := testStore(t)
	first := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)
	second := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	_, ok, err := s.LastLogin()
	require.NoError(t, err)
	assert.False(t, ok, "no login recorded yet")

	_, ok, err = s.PreviousLogin()
	require.NoError(t, err)
	assert.False(t, ok)

	s.now = func() time.Time { return first }
	prev, ok, err := s.RecordLogin()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, prev.IsZero())

	s.now = func() time.Time { return second }
	prev, ok, err = s.RecordLogin()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, prev.Equal(first), "previous login = %v, want %v", prev, first)

	last, ok, err := s.LastLogin()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(second))

	prevMark, ok, err := s.PreviousLogin()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, prevMark.Equal(first))
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"Example.COM":       "example.com",
		"  @newsletter.io ": "newsletter.io",
		"@@spam.net":        "spam.net",
		"   ":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), "NormalizeDomain(%q)", in)
	}
}

func TestExclusionDomains(t *testing.T) {
	s := testStore(t)

	domains, err := s.ExclusionDomains()
	require.NoError(t, err)
	assert.Empty(t, domains)
	assert.NotNil(t, domains)

	added, domains, err := s.AddExclusionDomain("@Marketing.Example.com")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"marketing.example.com"}, domains)

	added, _, err = s.AddExclusionDomain("marketing.example.com")
	require.NoError(t, err)
	assert.False(t, added, "duplicate add should report false")

	_, domains, err = s.AddExclusionDomain("alerts.bank.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"alerts.bank.com", "marketing.example.com"}, domains)

	removed, domains, err := s.RemoveExclusionDomain("ALERTS.bank.com")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"marketing.example.com"}, domains)

	removed, _, err = s.RemoveExclusionDomain("missing.org")
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = s.AddExclusionDomain(" @ ")
	assert.ErrorIs(t, err, ErrEmptyDomain)
}

func TestExclusionDomainsConcurrentAdds(t *testing.T) {
	s := testStore(t)

	domains := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com"}
	var wg sync.WaitGroup
	for _, d := range domains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AddExclusionDomain(d)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.ExclusionDomains()
	require.NoError(t, err)
	assert.Equal(t, domains, got)
}

func TestPreferredProvider(t *testing.T) {
	s := testStore(t)

	got, err := s.PreferredProvider()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetPreferredProvider("gemini"))
	got, err = s.PreferredProvider()
	require.NoError(t, err)
	assert.Equal(t, "gemini", got)
}
