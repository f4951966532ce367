package mqtt

import (
	"sync"
	"time"

	"github.com/nugget/steward/internal/llm"
)

// DailyTokens accumulates model token usage for the current local day
// and resets at midnight. It is safe for concurrent use.
type DailyTokens struct {
	mu     sync.Mutex
	input  int64
	output int64
	turns  int64
	day    string // local date of the current window, YYYY-MM-DD
	loc    *time.Location
	now    func() time.Time
}

// NewDailyTokens creates an accumulator that rolls over at midnight in
// loc. A nil loc means [time.Local].
func NewDailyTokens(loc *time.Location) *DailyTokens {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTokens{loc: loc, now: time.Now}
	d.day = d.today()
	return d
}

func (d *DailyTokens) today() string {
	return d.now().In(d.loc).Format(time.DateOnly)
}

// Record adds the usage of one model call.
func (d *DailyTokens) Record(u llm.Usage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	d.input += int64(u.InputTokens)
	d.output += int64(u.OutputTokens)
	d.turns++
}

// Snapshot returns today's input tokens, output tokens and model calls.
func (d *DailyTokens) Snapshot() (input, output, turns int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	return d.input, d.output, d.turns
}

// rollover zeroes the counters when the local date has changed. d.mu
// must be held.
func (d *DailyTokens) rollover() {
	if today := d.today(); today != d.day {
		d.input, d.output, d.turns = 0, 0, 0
		d.day = today
	}
}
