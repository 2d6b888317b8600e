// Package timestamp provides standardized Unix timestamp handling and the
// time-partition windows used by the datastore's per-week indexes.
//
// This package uses int64 milliseconds as the canonical timestamp format to
// eliminate timestamp parsing bugs and provide consistent behavior across the
// codebase. All timestamps are stored as milliseconds since Unix epoch (UTC).
//
// Zero Value Semantics:
//   - A timestamp value of 0 means "not set" or "unknown"
//   - Functions handle zero values gracefully, returning appropriate defaults
package timestamp

import (
	"fmt"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Week names the ISO-week window containing the given timestamp, formatted
// as "YYYY-ww" in UTC. Index partitions are keyed by this window.
func Week(ms int64) string {
	year, week := time.UnixMilli(ms).UTC().ISOWeek()
	return fmt.Sprintf("%04d-%02d", year, week)
}

// WeekStart returns the start of the ISO-week window containing the given
// timestamp, as Unix milliseconds. Weeks start Monday 00:00 UTC.
func WeekStart(ms int64) int64 {
	t := time.UnixMilli(ms).UTC()
	// time.Weekday numbers Sunday as 0; shift so Monday is 0.
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset).UnixMilli()
}

// WeekEnd returns the exclusive end of the ISO-week window containing the
// given timestamp, as Unix milliseconds.
func WeekEnd(ms int64) int64 {
	start := time.UnixMilli(WeekStart(ms)).UTC()
	return start.AddDate(0, 0, 7).UnixMilli()
}
