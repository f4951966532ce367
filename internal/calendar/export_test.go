package calendar

import "time"

// SetClock replaces the service's clock.
func SetClock(s *Service, now func() time.Time) { s.now = now }
