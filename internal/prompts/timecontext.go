package prompts

import (
	"fmt"
	"strings"
	"time"
)

// TimeContext renders the current date and the coming week so the model
// can resolve relative day names. now must already be in the local zone;
// zoneName labels it (e.g. "Eastern Time").
func TimeContext(now time.Time, zoneName string) string {
	var week strings.Builder
	for i := range 7 {
		day := now.AddDate(0, 0, i)
		if i > 0 {
			week.WriteByte('\n')
		}
		fmt.Fprintf(&week, "%s = %s", day.Format("Monday"), day.Format("2006-01-02"))
	}

	return fmt.Sprintf(`Current date/time: %s %s
Today's date: %s (%s)

This week's dates for reference:
%s

IMPORTANT: When the user says "this Thursday", they mean %s (the Thursday of this current week).
All times should be interpreted as %s unless otherwise specified.`,
		now.Format("Monday, January 02, 2006 at 03:04 PM"), zoneName,
		now.Format("2006-01-02"), now.Format("Monday"),
		week.String(),
		ThisWeekday(now, time.Thursday).Format("Monday, January 02, 2006"),
		zoneName)
}

// ThisWeekday returns the next occurrence of wd on or after now's date.
func ThisWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, days)
}

// UTCOffset formats t's zone offset as "-05:00".
func UTCOffset(t time.Time) string {
	return t.Format("-07:00")
}
