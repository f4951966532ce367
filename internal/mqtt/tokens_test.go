package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/nugget/steward/internal/llm"
)

func TestDailyTokens_Record(t *testing.T) {
	dt := NewDailyTokens(time.UTC)
	dt.Record(llm.Usage{InputTokens: 100, OutputTokens: 50})
	dt.Record(llm.Usage{InputTokens: 200, OutputTokens: 25})

	in, out, turns := dt.Snapshot()
	if in != 300 || out != 75 || turns != 2 {
		t.Errorf("Snapshot() = %d, %d, %d; want 300, 75, 2", in, out, turns)
	}
}

func TestDailyTokens_Concurrent(t *testing.T) {
	dt := NewDailyTokens(time.UTC)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dt.Record(llm.Usage{InputTokens: 1, OutputTokens: 2})
		}()
	}
	wg.Wait()

	in, out, turns := dt.Snapshot()
	if in != 50 || out != 100 || turns != 50 {
		t.Errorf("Snapshot() = %d, %d, %d; want 50, 100, 50", in, out, turns)
	}
}

func TestDailyTokens_MidnightRollover(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2025, 3, 4, 23, 59, 0, 0, loc)
	dt := NewDailyTokens(loc)
	dt.now = func() time.Time { return now }
	dt.day = dt.today()

	dt.Record(llm.Usage{InputTokens: 500, OutputTokens: 600})

	// 05:59 UTC is still March 4th in Chicago.
	now = time.Date(2025, 3, 5, 5, 59, 0, 0, time.UTC)
	if in, _, _ := dt.Snapshot(); in != 500 {
		t.Errorf("input before local midnight = %d, want 500", in)
	}

	now = time.Date(2025, 3, 5, 0, 1, 0, 0, loc)
	in, out, turns := dt.Snapshot()
	if in != 0 || out != 0 || turns != 0 {
		t.Errorf("after midnight = %d, %d, %d; want zeros", in, out, turns)
	}
}

func TestDailyTokens_NilLocation(t *testing.T) {
	dt := NewDailyTokens(nil)
	if dt.loc != time.Local {
		t.Error("nil location should default to time.Local")
	}
}
