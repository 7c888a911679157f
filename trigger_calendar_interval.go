package quartz

import (
	"time"

	"github.com/cockroachdb/errors"
)

// IntervalUnit is the unit of an interval trigger's repeat interval.
type IntervalUnit int

const (
	IntervalSecond IntervalUnit = iota + 1
	IntervalMinute
	IntervalHour
	IntervalDay
	IntervalWeek
	IntervalMonth
	IntervalYear
)

func (u IntervalUnit) String() string {
	switch u {
	case IntervalSecond:
		return "SECOND"
	case IntervalMinute:
		return "MINUTE"
	case IntervalHour:
		return "HOUR"
	case IntervalDay:
		return "DAY"
	case IntervalWeek:
		return "WEEK"
	case IntervalMonth:
		return "MONTH"
	case IntervalYear:
		return "YEAR"
	default:
		return "UNKNOWN"
	}
}

// fixed returns the unit's length when it is a fixed duration.
func (u IntervalUnit) fixed() (time.Duration, bool) {
	switch u {
	case IntervalSecond:
		return time.Second, true
	case IntervalMinute:
		return time.Minute, true
	case IntervalHour:
		return time.Hour, true
	}
	return 0, false
}

// CalendarIntervalTrigger fires every interval units from its start time,
// where units of a day or longer follow the wall clock of the trigger's
// location: one month after January 31 is the last day of February, and
// two months after it is March 31. Every occurrence is computed from the
// start time, so clamped days never drift.
//
// Without PreserveHourOfDayAcrossDaylightSavings, day and week intervals
// are fixed 24-hour multiples and the hour of day moves with DST changes.
// With it, every occurrence keeps the start time's hour of day; an
// occurrence whose hour does not exist that day fires at the time the clock
// jumps to, or is skipped when SkipDayIfHourDoesNotExist is set.
type CalendarIntervalTrigger struct {
	triggerBase
	interval     int
	unit         IntervalUnit
	loc          *time.Location
	preserveHour bool
	skipDay      bool
}

// NewCalendarIntervalTrigger returns a trigger firing every interval units from start.
func NewCalendarIntervalTrigger(key TriggerKey, jobKey JobKey, start time.Time, interval int, unit IntervalUnit) *CalendarIntervalTrigger {
	t := &CalendarIntervalTrigger{triggerBase: newTriggerBase(), interval: interval, unit: unit, loc: time.Local}
	t.key = key
	t.jobKey = jobKey
	t.startTime = start
	return t
}

// RepeatInterval returns the interval and its unit.
func (t *CalendarIntervalTrigger) RepeatInterval() (int, IntervalUnit) { return t.interval, t.unit }

// Location returns the time zone calendar arithmetic happens in.
func (t *CalendarIntervalTrigger) Location() *time.Location { return t.loc }

// SetLocation sets the time zone calendar arithmetic happens in.
func (t *CalendarIntervalTrigger) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	t.loc = loc
}

// PreserveHourOfDayAcrossDaylightSavings reports whether day-based
// intervals keep the start time's hour of day.
func (t *CalendarIntervalTrigger) PreserveHourOfDayAcrossDaylightSavings() bool {
	return t.preserveHour
}

// SetPreserveHourOfDayAcrossDaylightSavings sets the hour-preserving mode.
func (t *CalendarIntervalTrigger) SetPreserveHourOfDayAcrossDaylightSavings(v bool) {
	t.preserveHour = v
}

// SkipDayIfHourDoesNotExist reports whether an occurrence whose hour is
// skipped by a DST change is dropped.
func (t *CalendarIntervalTrigger) SkipDayIfHourDoesNotExist() bool { return t.skipDay }

// SetSkipDayIfHourDoesNotExist sets the skip mode. It only applies when the
// hour of day is preserved.
func (t *CalendarIntervalTrigger) SetSkipDayIfHourDoesNotExist(v bool) { t.skipDay = v }

// occurrence returns the k-th schedule instant counted from the start time
// (k = 0 is the start) and whether it exists.
func (t *CalendarIntervalTrigger) occurrence(k int) (time.Time, bool) {
	n := k * t.interval
	if d, ok := t.unit.fixed(); ok {
		return t.startTime.Add(time.Duration(n) * d), true
	}
	if !t.preserveHour {
		switch t.unit {
		case IntervalDay:
			return t.startTime.Add(time.Duration(n) * 24 * time.Hour), true
		case IntervalWeek:
			return t.startTime.Add(time.Duration(n) * 7 * 24 * time.Hour), true
		}
	}

	s := t.startTime.In(t.loc)
	y, m, d := s.Date()
	switch t.unit {
	case IntervalDay:
		d += n
	case IntervalWeek:
		d += 7 * n
	case IntervalMonth:
		m += time.Month(n)
		d = min(d, daysIn(y, m))
	case IntervalYear:
		y += n
		d = min(d, daysIn(y, m))
	}
	h, mi, sec := s.Clock()
	occ, exists := dateIn(y, m, d, h, mi, sec, s.Nanosecond(), t.loc)
	if t.preserveHour && !exists {
		return occ, !t.skipDay
	}
	return occ, true
}

// dateIn is time.Date, except that a wall time skipped by a DST
// spring-forward moves forward by the length of the gap. It reports whether
// the wall time exists.
func dateIn(y int, m time.Month, d, h, mi, sec, nsec int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, m, d, h, mi, sec, nsec, loc)
	if t.Hour() == h && t.Minute() == mi {
		return t, true
	}
	naive := time.Date(y, m, d, h, mi, sec, nsec, time.UTC)
	_, off := t.Add(-12 * time.Hour).Zone()
	return naive.Add(-time.Duration(off) * time.Second).In(loc), false
}

// estimate returns an index at or below the first occurrence after the
// given instant.
func (t *CalendarIntervalTrigger) estimate(after time.Time) int {
	var k int
	if d, ok := t.unit.fixed(); ok {
		return int(after.Sub(t.startTime) / (d * time.Duration(t.interval)))
	}
	s := t.startTime.In(t.loc)
	a := after.In(t.loc)
	switch t.unit {
	case IntervalDay:
		k = int(a.Sub(s)/(24*time.Hour)) / t.interval
	case IntervalWeek:
		k = int(a.Sub(s)/(7*24*time.Hour)) / t.interval
	case IntervalMonth:
		k = ((a.Year()-s.Year())*12 + int(a.Month()-s.Month())) / t.interval
	case IntervalYear:
		k = (a.Year() - s.Year()) / t.interval
	}
	return max(k-1, 0)
}

func (t *CalendarIntervalTrigger) FireTimeAfter(after time.Time) time.Time {
	if t.interval < 1 || t.unit < IntervalSecond || t.unit > IntervalYear {
		return time.Time{}
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	if after.IsZero() || after.Before(t.startTime) {
		if !t.endTime.IsZero() && !t.startTime.Before(t.endTime) {
			return time.Time{}
		}
		return t.startTime
	}
	for k := t.estimate(after); ; k++ {
		occ, ok := t.occurrence(k)
		if occ.Year() > yearToGiveUpSchedulingAt {
			return time.Time{}
		}
		if !ok || !occ.After(after) {
			continue
		}
		if !t.endTime.IsZero() && !occ.Before(t.endTime) {
			return time.Time{}
		}
		return occ
	}
}

// FinalFireTime returns the last occurrence before the end time, or the
// zero time when there is no end time.
func (t *CalendarIntervalTrigger) FinalFireTime() time.Time {
	if t.endTime.IsZero() {
		return time.Time{}
	}
	var last time.Time
	for k := t.estimate(t.endTime.Add(-time.Second)); ; k++ {
		occ, ok := t.occurrence(k)
		if !occ.Before(t.endTime) || occ.Year() > yearToGiveUpSchedulingAt {
			break
		}
		if ok {
			last = occ
		}
	}
	if last.IsZero() {
		// estimate may have started past the last occurrence
		for k := t.estimate(t.endTime.Add(-time.Second)) - 1; k >= 0; k-- {
			if occ, ok := t.occurrence(k); ok && occ.Before(t.endTime) {
				return occ
			}
		}
	}
	return last
}

func (t *CalendarIntervalTrigger) ComputeFirstFireTime(cal Calendar) time.Time {
	return t.computeFirstFireTime(t.FireTimeAfter(time.Time{}), cal, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) Triggered(cal Calendar) {
	t.triggered(cal, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) UpdateAfterMisfire(cal Calendar, now time.Time) {
	t.updateAfterMisfire(cal, now, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) Validate() error {
	if err := t.validate(MisfireDoNothing); err != nil {
		return err
	}
	if t.interval < 1 {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat interval must be >= 1", t.key)
	}
	if t.unit < IntervalSecond || t.unit > IntervalYear {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: invalid interval unit %d", t.key, t.unit)
	}
	return nil
}

func (t *CalendarIntervalTrigger) Clone() OperableTrigger {
	c := *t
	c.triggerBase = t.triggerBase.clone()
	return &c
}
