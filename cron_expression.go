package quartz

import (
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Year range accepted by the year field. Searches past MaxCronYear give up.
const (
	MinCronYear = 1970
	MaxCronYear = 2099
)

// CronExpression is a parsed Quartz-style cron expression:
//
//	Field            Allowed values     Special characters
//	---------------  -----------------  ------------------
//	Seconds          0-59               , - * /
//	Minutes          0-59               , - * /
//	Hours            0-23               , - * /
//	Day-of-month     1-31               , - * ? / L W
//	Month            1-12 or JAN-DEC    , - * /
//	Day-of-week      1-7 or SUN-SAT     , - * ? / L #
//	Year (optional)  1970-2099          , - * /
//
// Exactly one of day-of-month and day-of-week must be '?'. Each field is
// compiled into a bit set; the year field uses a wider set anchored at
// MinCronYear. A CronExpression is immutable and safe for concurrent use.
type CronExpression struct {
	text string
	loc  *time.Location

	seconds, minutes, hours uint64
	daysOfMonth, months     uint64
	daysOfWeek              uint64
	years                   yearSet

	domUnspecified bool
	dowUnspecified bool
	lastdayOfMonth bool
	lastdayOffset  int
	nearestWeekday bool
	lastdayOfWeek  bool
	nthdayOfWeek   int
}

// String returns the expression text as it was parsed.
func (e *CronExpression) String() string { return e.text }

// Location returns the time zone the fields are evaluated in.
func (e *CronExpression) Location() *time.Location { return e.loc }

// WithLocation returns a copy of the expression evaluated in loc.
func (e *CronExpression) WithLocation(loc *time.Location) *CronExpression {
	if loc == nil {
		loc = time.Local
	}
	c := *e
	c.loc = loc
	return &c
}

// NextFireTimeAfter returns the earliest instant strictly after the given
// one that satisfies every field, or the zero time when there is none up to
// MaxCronYear. The result is expressed in the expression's location.
func (e *CronExpression) NextFireTimeAfter(after time.Time) time.Time {
	start := after.In(e.loc).Truncate(time.Second).Add(time.Second)
	c := wall(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute(), start.Second())
	for {
		c = e.nextWallClock(c)
		if c.IsZero() {
			return time.Time{}
		}
		if t, ok := e.resolve(c, after); ok {
			return t
		}
		c = c.Add(time.Second)
	}
}

// IsSatisfiedBy reports whether t, truncated to the second, is a fire time.
func (e *CronExpression) IsSatisfiedBy(t time.Time) bool {
	t = t.Truncate(time.Second)
	next := e.NextFireTimeAfter(t.Add(-time.Second))
	return !next.IsZero() && next.Equal(t)
}

// NextInvalidTimeAfter returns the first second after t that does not
// satisfy the expression, skipping over runs of consecutive fire times.
func (e *CronExpression) NextInvalidTimeAfter(t time.Time) time.Time {
	last := t.Truncate(time.Second)
	for {
		next := e.NextFireTimeAfter(last)
		if next.IsZero() || next.Sub(last) != time.Second {
			break
		}
		last = next
	}
	return last.Add(time.Second).In(e.loc)
}

// resolve maps the wall-clock candidate c onto an instant after the given
// one. A wall time repeated by a DST fall-back resolves to its earliest
// occurrence that is still after; a wall time skipped by a spring-forward
// is shifted forward by the length of the gap.
func (e *CronExpression) resolve(c, after time.Time) (time.Time, bool) {
	t := time.Date(c.Year(), c.Month(), c.Day(), c.Hour(), c.Minute(), c.Second(), 0, e.loc)
	naive := c.Unix()

	var best time.Time
	exists := false
	for _, probe := range [...]time.Time{t.Add(-12 * time.Hour), t, t.Add(12 * time.Hour)} {
		_, off := probe.Zone()
		cand := time.Unix(naive-int64(off), 0).In(e.loc)
		if !sameWallClock(cand, c) {
			continue
		}
		exists = true
		if !cand.After(after) {
			continue
		}
		if best.IsZero() || cand.Before(best) {
			best = cand
		}
	}
	if exists {
		return best, !best.IsZero()
	}

	// the offset before the gap maps c past it
	_, off := t.Add(-12 * time.Hour).Zone()
	shifted := time.Unix(naive-int64(off), 0).In(e.loc)
	return shifted, shifted.After(after)
}

// nextWallClock returns the first wall-clock time at or after c, expressed
// as a naive UTC time, that matches every field. Fields are checked from
// seconds up to years; whenever a field has to move, every smaller field is
// reset and the check starts over.
func (e *CronExpression) nextWallClock(c time.Time) time.Time {
	for c.Year() <= MaxCronYear {
		y, mo, d := c.Date()
		h, mi, s := c.Clock()

		v, ok := nextBit(e.seconds, s, 59)
		if !ok {
			c = wall(y, mo, d, h, mi+1, 0)
			continue
		}
		if v != s {
			s = v
			c = wall(y, mo, d, h, mi, s)
		}

		if v, ok = nextBit(e.minutes, mi, 59); !ok {
			c = wall(y, mo, d, h+1, 0, 0)
			continue
		} else if v != mi {
			c = wall(y, mo, d, h, v, 0)
			continue
		}

		if v, ok = nextBit(e.hours, h, 23); !ok {
			c = wall(y, mo, d+1, 0, 0, 0)
			continue
		} else if v != h {
			c = wall(y, mo, d, v, 0, 0)
			continue
		}

		if v, ok = e.nextDay(y, mo, d); !ok {
			c = wall(y, mo+1, 1, 0, 0, 0)
			continue
		} else if v != d {
			c = wall(y, mo, v, 0, 0, 0)
			continue
		}

		if v, ok = nextBit(e.months, int(mo), 12); !ok {
			c = wall(y+1, time.January, 1, 0, 0, 0)
			continue
		} else if v != int(mo) {
			c = wall(y, time.Month(v), 1, 0, 0, 0)
			continue
		}

		if v, ok = e.years.next(y); !ok {
			return time.Time{}
		} else if v != y {
			c = wall(v, time.January, 1, 0, 0, 0)
			continue
		}
		return c
	}
	return time.Time{}
}

// nextDay returns the first day at or after d in the given month that
// satisfies the day-of-month or day-of-week rule.
func (e *CronExpression) nextDay(y int, m time.Month, d int) (int, bool) {
	last := daysIn(y, m)

	if e.dowUnspecified {
		switch {
		case e.lastdayOfMonth:
			target := last - e.lastdayOffset
			if target < 1 {
				return 0, false
			}
			if e.nearestWeekday {
				target = nearestWeekday(y, m, target, last)
			}
			return target, target >= d
		case e.nearestWeekday:
			target := lowestBit(e.daysOfMonth)
			if target > last {
				return 0, false
			}
			target = nearestWeekday(y, m, target, last)
			return target, target >= d
		default:
			return nextBit(e.daysOfMonth, d, last)
		}
	}

	first := cronWeekday(y, m, 1)
	switch {
	case e.lastdayOfWeek:
		want := lowestBit(e.daysOfWeek)
		lastDow := (first-1+last-1)%7 + 1
		day := last - (lastDow-want+7)%7
		return day, day >= d
	case e.nthdayOfWeek > 0:
		want := lowestBit(e.daysOfWeek)
		day := 1 + (want-first+7)%7 + (e.nthdayOfWeek-1)*7
		if day > last {
			return 0, false
		}
		return day, day >= d
	default:
		for day := d; day <= last; day++ {
			dow := (first-1+day-1)%7 + 1
			if e.daysOfWeek&(1<<uint(dow)) != 0 {
				return day, true
			}
		}
		return 0, false
	}
}

// Summary renders the compiled fields, one per line.
func (e *CronExpression) Summary() string {
	var b strings.Builder
	line := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	line("seconds", bitsString(e.seconds, 0, 59))
	line("minutes", bitsString(e.minutes, 0, 59))
	line("hours", bitsString(e.hours, 0, 23))
	if e.domUnspecified {
		line("daysOfMonth", "?")
	} else {
		line("daysOfMonth", bitsString(e.daysOfMonth, 1, 31))
	}
	line("months", bitsString(e.months, 1, 12))
	if e.dowUnspecified {
		line("daysOfWeek", "?")
	} else {
		line("daysOfWeek", bitsString(e.daysOfWeek, 1, 7))
	}
	line("lastdayOfWeek", strconv.FormatBool(e.lastdayOfWeek))
	line("nearestWeekday", strconv.FormatBool(e.nearestWeekday))
	line("NthDayOfWeek", strconv.Itoa(e.nthdayOfWeek))
	line("lastdayOfMonth", strconv.FormatBool(e.lastdayOfMonth))
	line("lastdayOffset", strconv.Itoa(e.lastdayOffset))
	line("years", e.years.String())
	return b.String()
}

// yearSet is a bit set of years offset from MinCronYear.
type yearSet [3]uint64

func (s *yearSet) set(y int) {
	i := y - MinCronYear
	s[i/64] |= 1 << uint(i%64)
}

func (s *yearSet) has(y int) bool {
	if y < MinCronYear || y > MaxCronYear {
		return false
	}
	i := y - MinCronYear
	return s[i/64]&(1<<uint(i%64)) != 0
}

// next returns the first year in the set at or after y.
func (s *yearSet) next(y int) (int, bool) {
	if y < MinCronYear {
		y = MinCronYear
	}
	for ; y <= MaxCronYear; y++ {
		i := y - MinCronYear
		word := s[i/64] >> uint(i%64)
		if word == 0 {
			y += 63 - i%64
			continue
		}
		y += bits.TrailingZeros64(word)
		return y, y <= MaxCronYear
	}
	return 0, false
}

func (s *yearSet) all() bool {
	for y := MinCronYear; y <= MaxCronYear; y++ {
		if !s.has(y) {
			return false
		}
	}
	return true
}

func (s *yearSet) String() string {
	if s.all() {
		return "*"
	}
	var parts []string
	for y := MinCronYear; y <= MaxCronYear; y++ {
		if s.has(y) {
			parts = append(parts, strconv.Itoa(y))
		}
	}
	return strings.Join(parts, ",")
}

// nextBit returns the lowest set bit at or above from and at most max.
func nextBit(set uint64, from, max int) (int, bool) {
	if from > 63 {
		return 0, false
	}
	rest := set >> uint(from)
	if rest == 0 {
		return 0, false
	}
	v := from + bits.TrailingZeros64(rest)
	return v, v <= max
}

func lowestBit(set uint64) int {
	return bits.TrailingZeros64(set)
}

func bitsString(set uint64, lo, hi int) string {
	full := true
	var parts []string
	for i := lo; i <= hi; i++ {
		if set&(1<<uint(i)) != 0 {
			parts = append(parts, strconv.Itoa(i))
		} else {
			full = false
		}
	}
	if full {
		return "*"
	}
	return strings.Join(parts, ",")
}

// wall builds a naive wall-clock time; time.Date normalises overflowing fields.
func wall(y int, mo time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC)
}

func sameWallClock(t, c time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := c.Date()
	h1, mi1, s1 := t.Clock()
	h2, mi2, s2 := c.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 && h1 == h2 && mi1 == mi2 && s1 == s2
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// cronWeekday returns the day-of-week of a date in cron numbering, 1=SUN..7=SAT.
func cronWeekday(y int, m time.Month, d int) int {
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Weekday()) + 1
}

// nearestWeekday moves a Saturday or Sunday to the closest weekday without
// leaving the month.
func nearestWeekday(y int, m time.Month, day, last int) int {
	switch time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Weekday() {
	case time.Saturday:
		if day == 1 {
			return day + 2
		}
		return day - 1
	case time.Sunday:
		if day == last {
			return day - 2
		}
		return day + 1
	}
	return day
}
