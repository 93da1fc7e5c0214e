package temporal

import (
	"errors"
	"strings"
	"time"
)

// DefaultTimezone is the display zone used when the config leaves the
// timezone unset.
const DefaultTimezone = "Europe/Stockholm"

// Clock carries the resolved display timezone and a "now" frozen once per
// run, so no two operations within a run disagree about what today means.
type Clock struct {
	Loc *time.Location
	Now time.Time
}

// NewClock resolves the given IANA timezone name and freezes the current
// time in it. An empty name falls back to DefaultTimezone.
func NewClock(timezone string) (Clock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Clock{}, err
	}
	return Clock{Loc: loc, Now: time.Now().In(loc)}, nil
}

// FixedClock builds a Clock around a preset instant, for callers (and
// tests) that need a specific "now".
func FixedClock(now time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Loc: loc, Now: now.In(loc)}
}

// Today returns the clock's calendar date at midnight in its location.
func (c Clock) Today() time.Time {
	y, m, d := c.Now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Loc)
}

// ParseDate parses a strict YYYY-MM-DD date. Anything else reports !ok;
// it never panics.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateTime parses an ISO-8601 timestamp (with or without a trailing
// Z or offset) or a "YYYY-MM-DD HH:MM" value. Offset-less input is
// interpreted as UTC. Invalid input reports !ok.
func ParseDateTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseRemoteTime parses a remote timestamp and converts it into the
// clock's display zone. Timestamps without an offset count as UTC.
func (c Clock) ParseRemoteTime(s string) (time.Time, bool) {
	t, ok := ParseDateTime(s)
	if !ok {
		return time.Time{}, false
	}
	return t.In(c.Loc), true
}

// SplitTimeRange splits a "start–end" time string on the first en-dash,
// em-dash, or hyphen. Empty input yields ("", ""); input without a
// separator yields (start, ""). Both sides are trimmed.
func SplitTimeRange(s string) (string, string) {
	if s == "" {
		return "", ""
	}
	normalized := strings.NewReplacer("–", "-", "—", "-").Replace(s)
	parts := strings.SplitN(normalized, "-", 2)
	start := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return start, ""
	}
	return start, strings.TrimSpace(parts[1])
}

// ErrBadClockTime reports a clock-time string that is not HH:MM.
var ErrBadClockTime = errors.New("clock time is not HH:MM")

// CombineDateTime builds a timezone-aware instant from a YYYY-MM-DD date
// and an optional HH:MM time in the given location. A missing time means
// end of day (23:59), which keeps undated-time deadlines grouped with
// their calendar date.
func CombineDateTime(date, clockTime string, loc *time.Location) (time.Time, error) {
	d, ok := ParseDate(date)
	if !ok {
		return time.Time{}, errors.New("date is not YYYY-MM-DD: " + date)
	}
	hour, minute := 23, 59
	if clockTime != "" {
		t, err := time.Parse("15:04", clockTime)
		if err != nil {
			return time.Time{}, ErrBadClockTime
		}
		hour, minute = t.Hour(), t.Minute()
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}
