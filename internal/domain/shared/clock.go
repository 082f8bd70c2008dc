package shared

import "time"

// Clock abstracts wall-clock access so window-boundary logic is testable.
// All production code takes a Clock instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now, always in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock pinned to a single instant. Intended for tests.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return c.T
}
