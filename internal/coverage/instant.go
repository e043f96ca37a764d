// Package coverage decides whether an instant falls inside staffed business
// hours and who is on call at that instant. It performs no I/O.
package coverage

import "time"

// Instant is a point in time tagged with how it must be read.
// Build one with At or WallClock; the zero value is invalid.
type Instant struct {
	t         time.Time
	wallClock bool
	valid     bool
}

// At tags an absolute instant. Its zone is honoured on conversion.
func At(t time.Time) Instant {
	return Instant{t: t, valid: true}
}

// WallClock tags a local wall-clock reading. The location attached to t is
// ignored; its date and clock fields are taken as already local.
func WallClock(t time.Time) Instant {
	return Instant{t: t, wallClock: true, valid: true}
}

func (i Instant) IsZero() bool { return !i.valid }

func (i Instant) IsWallClock() bool { return i.wallClock }

// In returns the wall-clock reading of i in loc
func (i Instant) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if i.wallClock {
		return time.Date(i.t.Year(), i.t.Month(), i.t.Day(),
			i.t.Hour(), i.t.Minute(), i.t.Second(), i.t.Nanosecond(), loc)
	}
	return i.t.In(loc)
}

// Weekday maps t to 0=Monday..6=Sunday
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// naive drops the zone, keeping only the wall-clock fields
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
