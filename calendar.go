package quartz

import (
	"cmp"
	"maps"
	"slices"
	"time"
)

// Calendar excludes instants from a trigger's schedule. Calendars chain: an
// instant is included only if the calendar and every calendar down its
// base chain include it.
//
// Calendars are mutable. The store keeps its own clone, so changes made to
// a calendar after storing it only take effect when it is stored again.
type Calendar interface {
	// IsTimeIncluded reports whether t is included by this calendar and its
	// base chain. It must be a pure function of t and the calendar's state.
	IsTimeIncluded(t time.Time) bool

	// NextIncludedTime returns the first included instant strictly after t,
	// or the zero time when none can be found.
	NextIncludedTime(t time.Time) time.Time

	Description() string
	BaseCalendar() Calendar
	Clone() Calendar
}

// maxCalendarSteps bounds the searches in NextIncludedTime so that a
// calendar excluding everything terminates.
const maxCalendarSteps = 10000

// baseCalendar carries the state every calendar shares.
type baseCalendar struct {
	base        Calendar
	description string
	loc         *time.Location
}

func newBaseCalendar(base Calendar) baseCalendar {
	return baseCalendar{base: base, loc: time.Local}
}

// BaseCalendar returns the chained calendar, or nil.
func (c *baseCalendar) BaseCalendar() Calendar { return c.base }

// SetBaseCalendar chains base below this calendar.
func (c *baseCalendar) SetBaseCalendar(base Calendar) { c.base = base }

// Description returns the description.
func (c *baseCalendar) Description() string { return c.description }

// SetDescription sets the description.
func (c *baseCalendar) SetDescription(d string) { c.description = d }

// Location returns the time zone exclusions are evaluated in.
func (c *baseCalendar) Location() *time.Location { return c.loc }

// SetLocation sets the time zone exclusions are evaluated in.
func (c *baseCalendar) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	c.loc = loc
}

func (c *baseCalendar) baseIncludes(t time.Time) bool {
	return c.base == nil || c.base.IsTimeIncluded(t)
}

func (c baseCalendar) clone() baseCalendar {
	if c.base != nil {
		c.base = c.base.Clone()
	}
	return c
}

// nextIncluded combines a calendar's own rule with its base chain. own
// returns the first instant at or after its argument accepted by the
// calendar's own rule.
func (c *baseCalendar) nextIncluded(t time.Time, own func(time.Time) time.Time) time.Time {
	cur := t.Add(time.Millisecond)
	for range maxCalendarSteps {
		cur = own(cur)
		if cur.IsZero() {
			return time.Time{}
		}
		if c.baseIncludes(cur) {
			return cur
		}
		next := c.base.NextIncludedTime(cur)
		if next.IsZero() {
			return time.Time{}
		}
		cur = next
	}
	return time.Time{}
}

// startOfNextDay returns midnight of the day after t in loc.
func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}

// scanDays advances t day by day until excluded reports false.
func scanDays(t time.Time, loc *time.Location, excluded func(time.Time) bool) time.Time {
	for range maxCalendarSteps {
		if !excluded(t.In(loc)) {
			return t
		}
		t = startOfNextDay(t, loc)
	}
	return time.Time{}
}

// MonthDay is a day of the year independent of the year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// AnnualCalendar excludes days of the year, such as public holidays that
// fall on the same date every year.
type AnnualCalendar struct {
	baseCalendar
	excluded map[MonthDay]struct{}
}

// NewAnnualCalendar returns an AnnualCalendar chained to base, which may be nil.
func NewAnnualCalendar(base Calendar) *AnnualCalendar {
	return &AnnualCalendar{baseCalendar: newBaseCalendar(base), excluded: map[MonthDay]struct{}{}}
}

// SetDayExcluded excludes or includes the given day of every year.
func (c *AnnualCalendar) SetDayExcluded(month time.Month, day int, exclude bool) {
	k := MonthDay{month, day}
	if exclude {
		c.excluded[k] = struct{}{}
	} else {
		delete(c.excluded, k)
	}
}

// IsDayExcluded reports whether t's day of the year is excluded.
func (c *AnnualCalendar) IsDayExcluded(t time.Time) bool {
	t = t.In(c.loc)
	_, ok := c.excluded[MonthDay{t.Month(), t.Day()}]
	return ok
}

// ExcludedDays returns the excluded days in calendar order.
func (c *AnnualCalendar) ExcludedDays() []MonthDay {
	days := slices.Collect(maps.Keys(c.excluded))
	slices.SortFunc(days, func(a, b MonthDay) int {
		if r := cmp.Compare(a.Month, b.Month); r != 0 {
			return r
		}
		return cmp.Compare(a.Day, b.Day)
	})
	return days
}

func (c *AnnualCalendar) IsTimeIncluded(t time.Time) bool {
	return c.baseIncludes(t) && !c.IsDayExcluded(t)
}

func (c *AnnualCalendar) NextIncludedTime(t time.Time) time.Time {
	if len(c.excluded) >= 366 {
		return time.Time{}
	}
	return c.nextIncluded(t, func(t time.Time) time.Time {
		return scanDays(t, c.loc, c.IsDayExcluded)
	})
}

func (c *AnnualCalendar) Clone() Calendar {
	return &AnnualCalendar{baseCalendar: c.baseCalendar.clone(), excluded: maps.Clone(c.excluded)}
}

// MonthlyCalendar excludes days of the month, 1 through 31.
type MonthlyCalendar struct {
	baseCalendar
	excluded uint32
}

// NewMonthlyCalendar returns a MonthlyCalendar chained to base.
func NewMonthlyCalendar(base Calendar) *MonthlyCalendar {
	return &MonthlyCalendar{baseCalendar: newBaseCalendar(base)}
}

// SetDayExcluded excludes or includes day (1-31) of every month.
func (c *MonthlyCalendar) SetDayExcluded(day int, exclude bool) {
	if day < 1 || day > 31 {
		return
	}
	if exclude {
		c.excluded |= 1 << uint(day)
	} else {
		c.excluded &^= 1 << uint(day)
	}
}

// IsDayExcluded reports whether t's day of the month is excluded.
func (c *MonthlyCalendar) IsDayExcluded(t time.Time) bool {
	return c.excluded&(1<<uint(t.In(c.loc).Day())) != 0
}

// AreAllDaysExcluded reports whether every day of the month is excluded.
func (c *MonthlyCalendar) AreAllDaysExcluded() bool {
	return c.excluded == 0xFFFFFFFE
}

func (c *MonthlyCalendar) IsTimeIncluded(t time.Time) bool {
	return c.baseIncludes(t) && !c.IsDayExcluded(t)
}

func (c *MonthlyCalendar) NextIncludedTime(t time.Time) time.Time {
	if c.AreAllDaysExcluded() {
		return time.Time{}
	}
	return c.nextIncluded(t, func(t time.Time) time.Time {
		return scanDays(t, c.loc, c.IsDayExcluded)
	})
}

func (c *MonthlyCalendar) Clone() Calendar {
	return &MonthlyCalendar{baseCalendar: c.baseCalendar.clone(), excluded: c.excluded}
}

// WeeklyCalendar excludes days of the week. A new WeeklyCalendar excludes
// Saturday and Sunday.
type WeeklyCalendar struct {
	baseCalendar
	excluded [7]bool
}

// NewWeeklyCalendar returns a WeeklyCalendar chained to base that excludes weekends.
func NewWeeklyCalendar(base Calendar) *WeeklyCalendar {
	c := &WeeklyCalendar{baseCalendar: newBaseCalendar(base)}
	c.excluded[time.Saturday] = true
	c.excluded[time.Sunday] = true
	return c
}

// SetDayExcluded excludes or includes the given weekday.
func (c *WeeklyCalendar) SetDayExcluded(day time.Weekday, exclude bool) {
	c.excluded[day] = exclude
}

// IsDayExcluded reports whether t's weekday is excluded.
func (c *WeeklyCalendar) IsDayExcluded(t time.Time) bool {
	return c.excluded[t.In(c.loc).Weekday()]
}

// AreAllDaysExcluded reports whether every weekday is excluded.
func (c *WeeklyCalendar) AreAllDaysExcluded() bool {
	for _, e := range c.excluded {
		if !e {
			return false
		}
	}
	return true
}

func (c *WeeklyCalendar) IsTimeIncluded(t time.Time) bool {
	return c.baseIncludes(t) && !c.IsDayExcluded(t)
}

func (c *WeeklyCalendar) NextIncludedTime(t time.Time) time.Time {
	if c.AreAllDaysExcluded() {
		return time.Time{}
	}
	return c.nextIncluded(t, func(t time.Time) time.Time {
		return scanDays(t, c.loc, c.IsDayExcluded)
	})
}

func (c *WeeklyCalendar) Clone() Calendar {
	return &WeeklyCalendar{baseCalendar: c.baseCalendar.clone(), excluded: c.excluded}
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func civilDateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

// HolidayCalendar excludes individual dates.
type HolidayCalendar struct {
	baseCalendar
	dates map[civilDate]struct{}
}

// NewHolidayCalendar returns a HolidayCalendar chained to base.
func NewHolidayCalendar(base Calendar) *HolidayCalendar {
	return &HolidayCalendar{baseCalendar: newBaseCalendar(base), dates: map[civilDate]struct{}{}}
}

// AddExcludedDate excludes the calendar date of t, read in the calendar's location.
func (c *HolidayCalendar) AddExcludedDate(t time.Time) {
	c.dates[civilDateOf(t.In(c.loc))] = struct{}{}
}

// RemoveExcludedDate includes the calendar date of t again.
func (c *HolidayCalendar) RemoveExcludedDate(t time.Time) {
	delete(c.dates, civilDateOf(t.In(c.loc)))
}

// ExcludedDates returns midnight of every excluded date, in ascending order.
func (c *HolidayCalendar) ExcludedDates() []time.Time {
	out := make([]time.Time, 0, len(c.dates))
	for d := range c.dates {
		out = append(out, time.Date(d.year, d.month, d.day, 0, 0, 0, 0, c.loc))
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

func (c *HolidayCalendar) isDateExcluded(t time.Time) bool {
	_, ok := c.dates[civilDateOf(t.In(c.loc))]
	return ok
}

func (c *HolidayCalendar) IsTimeIncluded(t time.Time) bool {
	return c.baseIncludes(t) && !c.isDateExcluded(t)
}

func (c *HolidayCalendar) NextIncludedTime(t time.Time) time.Time {
	return c.nextIncluded(t, func(t time.Time) time.Time {
		return scanDays(t, c.loc, c.isDateExcluded)
	})
}

func (c *HolidayCalendar) Clone() Calendar {
	return &HolidayCalendar{baseCalendar: c.baseCalendar.clone(), dates: maps.Clone(c.dates)}
}
