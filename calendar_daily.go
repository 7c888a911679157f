package quartz

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// DailyCalendar excludes a time range of every day, or with InvertTimeRange
// set, everything outside that range. Both ends of the range are inclusive
// to the second.
type DailyCalendar struct {
	baseCalendar
	start, end TimeOfDay
	invert     bool
}

// NewDailyCalendar returns a DailyCalendar excluding start through end of
// every day. start must be before end.
func NewDailyCalendar(base Calendar, start, end TimeOfDay) (*DailyCalendar, error) {
	if err := start.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidCalendar, err.Error())
	}
	if err := end.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidCalendar, err.Error())
	}
	if !start.Before(end) {
		return nil, errors.Wrapf(ErrInvalidCalendar, "invalid time range: %s must be before %s", start, end)
	}
	return &DailyCalendar{baseCalendar: newBaseCalendar(base), start: start, end: end}, nil
}

// TimeRange returns the configured range.
func (c *DailyCalendar) TimeRange() (start, end TimeOfDay) { return c.start, c.end }

// InvertTimeRange reports whether only the range is included.
func (c *DailyCalendar) InvertTimeRange() bool { return c.invert }

// SetInvertTimeRange switches between excluding the range (false) and
// excluding everything outside it (true).
func (c *DailyCalendar) SetInvertTimeRange(invert bool) { c.invert = invert }

func (c *DailyCalendar) inRange(t time.Time) bool {
	tod := TimeOfDayOf(t.In(c.loc))
	return !tod.Before(c.start) && !c.end.Before(tod)
}

func (c *DailyCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	return c.inRange(t) == c.invert
}

func (c *DailyCalendar) NextIncludedTime(t time.Time) time.Time {
	return c.nextIncluded(t, func(t time.Time) time.Time {
		local := t.In(c.loc)
		switch {
		case !c.invert && c.inRange(local):
			// first instant after the excluded range
			return c.end.On(local).Add(time.Second)
		case c.invert && TimeOfDayOf(local).Before(c.start):
			return c.start.On(local)
		case c.invert && c.end.Before(TimeOfDayOf(local)):
			return c.start.On(startOfNextDay(local, c.loc))
		}
		return t
	})
}

func (c *DailyCalendar) Clone() Calendar {
	cp := *c
	cp.baseCalendar = c.baseCalendar.clone()
	return &cp
}

func (c *DailyCalendar) String() string {
	return fmt.Sprintf("DailyCalendar{%s-%s, inverted=%t}", c.start, c.end, c.invert)
}
