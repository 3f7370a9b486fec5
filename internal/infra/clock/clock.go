// Package clock provides the process-wide time source. The ledger's
// notion of "today" is a calendar date in a single fixed timezone, decided
// once at configuration time, so the clock carries its location with it.
package clock

import "time"

// System is a wall clock pinned to a location.
type System struct {
	loc *time.Location
}

// NewSystem creates a system clock in the given location (UTC by default).
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

// Now returns the current time in the configured location.
func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

// Fixed is a clock frozen at a single instant, for deterministic tests of
// day-rollover behavior.
type Fixed struct {
	T time.Time
}

// Now returns the frozen instant.
func (f Fixed) Now() time.Time {
	return f.T
}
