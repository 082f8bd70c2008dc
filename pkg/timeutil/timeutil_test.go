package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNextSunday_MidWeek(t *testing.T) {
	// Wednesday 2026-01-07 -> Sunday 2026-01-11.
	got := NextSunday(date(2026, time.January, 7, 15, 30))
	assert.Equal(t, date(2026, time.January, 11, 0, 0), got)
}

func TestNextSunday_SaturdayNight(t *testing.T) {
	got := NextSunday(date(2026, time.January, 10, 23, 59))
	assert.Equal(t, date(2026, time.January, 11, 0, 0), got)
}

func TestNextSunday_ExactlySundayMidnight(t *testing.T) {
	// The boundary must always advance: Sunday midnight maps to the
	// following Sunday, not itself.
	sunday := date(2026, time.January, 11, 0, 0)
	got := NextSunday(sunday)
	assert.Equal(t, date(2026, time.January, 18, 0, 0), got)
}

func TestNextSunday_DuringSunday(t *testing.T) {
	got := NextSunday(date(2026, time.January, 11, 14, 0))
	assert.Equal(t, date(2026, time.January, 18, 0, 0), got)
}

func TestNextSunday_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	// Sunday 04:00 local is Saturday 22:00 UTC, so the boundary is the
	// same day's UTC midnight plus one day.
	local := time.Date(2026, time.January, 11, 4, 0, 0, 0, loc)
	got := NextSunday(local)
	assert.Equal(t, date(2026, time.January, 11, 0, 0), got)
}

func TestStartOfWeek(t *testing.T) {
	// Any instant in the week maps back to the preceding Sunday midnight.
	sunday := date(2026, time.January, 11, 0, 0)
	for _, tc := range []time.Time{
		sunday,
		date(2026, time.January, 11, 23, 59),
		date(2026, time.January, 13, 9, 15),
		date(2026, time.January, 17, 23, 59),
	} {
		assert.Equal(t, sunday, StartOfWeek(tc), "input %v", tc)
	}
}

func TestSameWeek(t *testing.T) {
	assert.True(t, SameWeek(date(2026, time.January, 12, 0, 0), date(2026, time.January, 17, 12, 0)))
	assert.False(t, SameWeek(date(2026, time.January, 10, 23, 0), date(2026, time.January, 11, 1, 0)))
}

func TestWindowExpired(t *testing.T) {
	resetAt := date(2026, time.January, 11, 0, 0)

	assert.False(t, WindowExpired(resetAt.Add(-time.Second), resetAt))
	// The boundary instant itself counts as expired.
	assert.True(t, WindowExpired(resetAt, resetAt))
	assert.True(t, WindowExpired(resetAt.Add(time.Second), resetAt))
}

func TestHumanizeUntil(t *testing.T) {
	now := date(2026, time.January, 7, 12, 0)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"past", now.Add(-time.Hour), "now"},
		{"under a minute", now.Add(30 * time.Second), "1m"},
		{"minutes", now.Add(45 * time.Minute), "45m"},
		{"hours", now.Add(5 * time.Hour), "5h"},
		{"whole days", now.Add(48 * time.Hour), "2d"},
		{"days and hours", now.Add(50 * time.Hour), "2d2h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanizeUntil(now, tt.t))
		})
	}
}
