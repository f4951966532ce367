package prompts

import (
	"fmt"
	"strings"
	"time"
)

// PriorityEventTitle is the notification title for an upcoming priority
// event.
const PriorityEventTitle = "Important Event Coming Up"

// DailySummaryTitle is the notification title of the morning summary.
const DailySummaryTitle = "Daily Summary"

// PriorityEventMessage describes one upcoming priority event.
func PriorityEventMessage(summary string, start time.Time) string {
	return fmt.Sprintf("%s at %s", summary, start.Format("Monday Jan 02, 03:04 PM"))
}

// DailySummaryMessage lists up to the first five of today's events.
// Each item is a preformatted line such as "Standup at 09:00 AM".
func DailySummaryMessage(titles []string) string {
	if len(titles) == 0 {
		return "You have no events today"
	}
	var b strings.Builder
	noun := "events"
	if len(titles) == 1 {
		noun = "event"
	}
	fmt.Fprintf(&b, "You have %d %s today:", len(titles), noun)
	shown := titles
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, t := range shown {
		b.WriteString("\n• ")
		b.WriteString(t)
	}
	if more := len(titles) - len(shown); more > 0 {
		fmt.Fprintf(&b, "\n...and %d more", more)
	}
	return b.String()
}
