// Package timeutil provides UTC week-window utilities for the Daris tutor core.
// Usage quotas roll over Sunday-to-Sunday in UTC, so every window boundary
// computation lives here and is covered by deterministic tests.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// StartOfDay returns the start of the day (00:00:00) in UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NextSunday returns the next Sunday 00:00:00 UTC strictly after t.
// If t itself is exactly Sunday midnight, the following Sunday is returned,
// so a window boundary always advances.
func NextSunday(t time.Time) time.Time {
	day := StartOfDay(t)
	daysAhead := (7 - int(day.Weekday())) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	next := day.AddDate(0, 0, daysAhead)
	if !next.After(t) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// StartOfWeek returns the start of the quota week containing t,
// which is the most recent Sunday 00:00:00 UTC at or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// SameWeek reports whether two times fall into the same quota week.
func SameWeek(a, b time.Time) bool {
	return StartOfWeek(a).Equal(StartOfWeek(b))
}

// WindowExpired reports whether a window with the given resetAt boundary
// has rolled over at time now.
func WindowExpired(now, resetAt time.Time) bool {
	return !now.Before(resetAt)
}

// HumanizeUntil renders the remaining time until t in coarse units,
// for the "quota resets in ..." wait message.
func HumanizeUntil(now, t time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("%dm", mins)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}
