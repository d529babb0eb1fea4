// Package window provides timezone-pinned calendar predicates used by every
// aggregator: day keys, "today" and lookback membership, and hour-of-day
// bucketing. All calculations use one fixed business timezone so results do
// not depend on the host clock's location.
package window

import (
	"time"

	"github.com/rotisserie/eris"
)

// DefaultTimezone is the business-local timezone used when none is configured.
const DefaultTimezone = "Asia/Kolkata"

// Clock evaluates calendar predicates in a fixed reference timezone.
// The zero value is not usable; construct with New or Fixed.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New loads the named timezone and returns a Clock using the real time.
func New(tz string) (*Clock, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "window: load timezone %s", tz)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Fixed returns a Clock whose "now" is pinned to the given instant.
// Used by tests and by snapshot builds that need one consistent reference.
func Fixed(tz string, now time.Time) (*Clock, error) {
	c, err := New(tz)
	if err != nil {
		return nil, err
	}
	c.now = func() time.Time { return now }
	return c, nil
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time { return c.now() }

// Location returns the reference timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// DayKey formats an instant as YYYY-MM-DD in the reference timezone.
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// IsToday reports whether t falls on the current calendar day in the
// reference timezone. Zero timestamps never match.
func (c *Clock) IsToday(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return c.DayKey(t) == c.DayKey(c.now())
}

// WithinLastDays reports whether t is at most days*24h before now.
// Zero timestamps never match; future timestamps do.
func (c *Clock) WithinLastDays(t time.Time, days int) bool {
	if t.IsZero() {
		return false
	}
	return c.now().Sub(t) <= time.Duration(days)*24*time.Hour
}

// HourOf returns the hour of day (0-23) of t in the reference timezone.
// Returns -1 for zero timestamps so missing data never lands in a bucket.
func (c *Clock) HourOf(t time.Time) int {
	if t.IsZero() {
		return -1
	}
	return t.In(c.loc).Hour()
}

// WeekdayIndex returns a Monday-based weekday index (Mon=0 .. Sun=6) of t
// in the reference timezone, or -1 for zero timestamps.
func (c *Clock) WeekdayIndex(t time.Time) int {
	if t.IsZero() {
		return -1
	}
	return (int(t.In(c.loc).Weekday()) + 6) % 7
}

// HourLabel formats an hour bucket as "HH:00". Out-of-range hours map to "--".
func HourLabel(hour int) string {
	if hour < 0 || hour > 23 {
		return "--"
	}
	return time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC).Format("15:04")
}
