package calendar

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted by ParseTime for timestamps without an offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. A timestamp that carries an
// offset (or Z) keeps it; one without is interpreted in loc, never UTC.
// Fractional seconds are accepted. The result is expressed in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	local := s
	if i := strings.IndexByte(local, '.'); i > 0 {
		local = local[:i]
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, local, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want ISO 8601, e.g. 2025-01-16T14:00:00)", s)
}

type zoneNames struct{ abbrev, long string }

var usZones = map[string]zoneNames{
	"America/New_York":    {"ET", "Eastern Time"},
	"America/Detroit":     {"ET", "Eastern Time"},
	"America/Chicago":     {"CT", "Central Time"},
	"America/Denver":      {"MT", "Mountain Time"},
	"America/Phoenix":     {"MT", "Mountain Time"},
	"America/Los_Angeles": {"PT", "Pacific Time"},
	"America/Anchorage":   {"AKT", "Alaska Time"},
	"Pacific/Honolulu":    {"HT", "Hawaii Time"},
}

// ZoneAbbrev returns a season-neutral short label for loc ("ET"),
// falling back to the zone's current abbreviation.
func ZoneAbbrev(loc *time.Location) string {
	if z, ok := usZones[loc.String()]; ok {
		return z.abbrev
	}
	return time.Now().In(loc).Format("MST")
}

// ZoneName returns a human label for loc ("Eastern Time"), falling
// back to the IANA name.
func ZoneName(loc *time.Location) string {
	if z, ok := usZones[loc.String()]; ok {
		return z.long
	}
	return loc.String()
}
