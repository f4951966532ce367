package tools

import (
	"math"
	"strings"
)

// Args is a validated tool input.
type Args map[string]any

// String returns a trimmed string argument, or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return strings.TrimSpace(s)
}

// StringOr returns a string argument, or def when absent or empty.
func (a Args) StringOr(key, def string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return def
}

// Int returns an integer argument, or def when absent.
func (a Args) Int(key string, def int) int {
	f, ok := toFloat(a[key])
	if !ok {
		return def
	}
	return int(math.Round(f))
}
