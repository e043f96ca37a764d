package coverage

import (
	"time"

	"github.com/phonginreallife/oncall-notifier/db"
)

// Calendar is a point-in-time snapshot of business hours and holidays in one
// timezone.
type Calendar struct {
	loc      *time.Location
	windows  map[int]db.BusinessHourWindow
	holidays map[db.Date]db.Holiday
}

// NewCalendar builds a snapshot. A later window for the same weekday replaces
// an earlier one. A nil loc means UTC.
func NewCalendar(loc *time.Location, windows []db.BusinessHourWindow, holidays []db.Holiday) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		loc:      loc,
		windows:  make(map[int]db.BusinessHourWindow, len(windows)),
		holidays: make(map[db.Date]db.Holiday, len(holidays)),
	}
	for _, w := range windows {
		c.windows[w.DayOfWeek] = w
	}
	for _, h := range holidays {
		c.holidays[h.Date] = h
	}
	return c
}

func (c *Calendar) Location() *time.Location { return c.loc }

// IsCovered reports whether at falls inside staffed business hours.
// A holiday on the local date, or a weekday without a window, is never
// covered. Window bounds are inclusive.
func (c *Calendar) IsCovered(at Instant) bool {
	if at.IsZero() {
		return false
	}
	local := at.In(c.loc)

	if _, ok := c.holidays[db.DateOf(local)]; ok {
		return false
	}

	w, ok := c.windows[Weekday(local)]
	if !ok {
		return false
	}

	clock := db.ClockOf(local)
	return w.StartTime <= clock && clock <= w.EndTime
}

// HolidayOn returns the holiday on the local date of at, or nil
func (c *Calendar) HolidayOn(at Instant) *db.Holiday {
	if at.IsZero() {
		return nil
	}
	h, ok := c.holidays[db.DateOf(at.In(c.loc))]
	if !ok {
		return nil
	}
	return &h
}

// Window returns the business-hour window for weekday (0=Monday)
func (c *Calendar) Window(weekday int) (db.BusinessHourWindow, bool) {
	w, ok := c.windows[weekday]
	return w, ok
}
