package tools

import (
	"strings"

	"github.com/nugget/steward/internal/calendar"
)

// PriorityKeywords mark events the assistant must not double-book.
var PriorityKeywords = []string{
	"interview", "deadline", "presentation", "meeting with ceo",
	"board meeting", "final", "urgent", "important", "review",
	"submission", "due date", "exam", "flight", "doctor",
}

// IsPriority reports whether an event title contains a priority
// keyword, case-insensitively. Descriptions are not considered.
func IsPriority(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range PriorityKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// PriorityEvents filters events to those with priority titles. The
// result is never nil.
func PriorityEvents(events []calendar.Event) []calendar.Event {
	out := []calendar.Event{}
	for _, e := range events {
		if IsPriority(e.Summary) {
			out = append(out, e)
		}
	}
	return out
}
