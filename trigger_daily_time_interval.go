package quartz

import (
	"time"

	"github.com/cockroachdb/errors"
)

// DailyTimeIntervalTrigger fires every interval seconds, minutes or hours
// within a daily time window, on selected days of the week. Each day's
// firings are aligned to the window's start. Both ends of the window are
// inclusive.
type DailyTimeIntervalTrigger struct {
	triggerBase
	interval       int
	unit           IntervalUnit
	startTimeOfDay TimeOfDay
	endTimeOfDay   TimeOfDay
	daysOfWeek     [7]bool
	repeatCount    int
	loc            *time.Location
}

// NewDailyTimeIntervalTrigger returns a trigger firing every interval units
// from 00:00:00 to 23:59:59 on every day of the week.
func NewDailyTimeIntervalTrigger(key TriggerKey, jobKey JobKey, start time.Time, interval int, unit IntervalUnit) *DailyTimeIntervalTrigger {
	t := &DailyTimeIntervalTrigger{
		triggerBase:  newTriggerBase(),
		interval:     interval,
		unit:         unit,
		endTimeOfDay: NewTimeOfDay(23, 59, 59),
		repeatCount:  RepeatIndefinitely,
		loc:          time.Local,
	}
	for i := range t.daysOfWeek {
		t.daysOfWeek[i] = true
	}
	t.key = key
	t.jobKey = jobKey
	t.startTime = start
	return t
}

// RepeatInterval returns the interval and its unit.
func (t *DailyTimeIntervalTrigger) RepeatInterval() (int, IntervalUnit) { return t.interval, t.unit }

// TimeWindow returns the daily window.
func (t *DailyTimeIntervalTrigger) TimeWindow() (start, end TimeOfDay) {
	return t.startTimeOfDay, t.endTimeOfDay
}

// SetTimeWindow sets the daily window.
func (t *DailyTimeIntervalTrigger) SetTimeWindow(start, end TimeOfDay) {
	t.startTimeOfDay, t.endTimeOfDay = start, end
}

// DaysOfWeek returns the days the trigger fires on.
func (t *DailyTimeIntervalTrigger) DaysOfWeek() []time.Weekday {
	var out []time.Weekday
	for d, on := range t.daysOfWeek {
		if on {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}

// SetDaysOfWeek restricts the trigger to the given days.
func (t *DailyTimeIntervalTrigger) SetDaysOfWeek(days ...time.Weekday) {
	t.daysOfWeek = [7]bool{}
	for _, d := range days {
		t.daysOfWeek[d] = true
	}
}

// RepeatCount returns the number of repeats after the first firing, or
// RepeatIndefinitely.
func (t *DailyTimeIntervalTrigger) RepeatCount() int { return t.repeatCount }

// SetRepeatCount limits the number of repeats after the first firing.
func (t *DailyTimeIntervalTrigger) SetRepeatCount(n int) { t.repeatCount = n }

// Location returns the time zone the window is evaluated in.
func (t *DailyTimeIntervalTrigger) Location() *time.Location { return t.loc }

// SetLocation sets the time zone the window is evaluated in.
func (t *DailyTimeIntervalTrigger) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	t.loc = loc
}

func (t *DailyTimeIntervalTrigger) step() time.Duration {
	d, _ := t.unit.fixed()
	return time.Duration(t.interval) * d
}

func (t *DailyTimeIntervalTrigger) nextDayStart(day time.Time) time.Time {
	return t.startTimeOfDay.On(time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, t.loc))
}

func (t *DailyTimeIntervalTrigger) FireTimeAfter(after time.Time) time.Time {
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		return time.Time{}
	}
	step := t.step()
	if step <= 0 {
		return time.Time{}
	}
	if start := ceilSecond(t.startTime); after.IsZero() || after.Before(start) {
		after = start.Add(-time.Second)
	}
	cur := after.In(t.loc).Truncate(time.Second).Add(time.Second)

	// at most one pass over the week plus the day we start on
	for range 9 {
		if !t.daysOfWeek[cur.Weekday()] {
			cur = t.nextDayStart(cur)
			continue
		}
		dayStart := t.startTimeOfDay.On(cur)
		dayEnd := t.endTimeOfDay.On(cur)
		if cur.After(dayEnd) {
			cur = t.nextDayStart(cur)
			continue
		}
		ft := dayStart
		if cur.After(dayStart) {
			jumps := (cur.Sub(dayStart) + step - 1) / step
			ft = dayStart.Add(jumps * step)
			if ft.After(dayEnd) {
				cur = t.nextDayStart(cur)
				continue
			}
		}
		if !t.endTime.IsZero() && ft.After(t.endTime) {
			return time.Time{}
		}
		return ft
	}
	return time.Time{}
}

// FinalFireTime returns the last fire time at or before the end time, or
// the zero time when there is no end time.
func (t *DailyTimeIntervalTrigger) FinalFireTime() time.Time {
	step := t.step()
	if t.endTime.IsZero() || step <= 0 {
		return time.Time{}
	}
	end := t.endTime.In(t.loc)
	for i := range 8 {
		day := time.Date(end.Year(), end.Month(), end.Day()-i, 0, 0, 0, 0, t.loc)
		if !t.daysOfWeek[day.Weekday()] {
			continue
		}
		dayStart := t.startTimeOfDay.On(day)
		limit := t.endTimeOfDay.On(day)
		if end.Before(limit) {
			limit = end
		}
		if limit.Before(dayStart) {
			continue
		}
		ft := dayStart.Add(limit.Sub(dayStart) / step * step)
		if ft.Before(t.startTime) {
			return time.Time{}
		}
		return ft
	}
	return time.Time{}
}

func (t *DailyTimeIntervalTrigger) ComputeFirstFireTime(cal Calendar) time.Time {
	return t.computeFirstFireTime(t.FireTimeAfter(t.startTime.Add(-time.Second)), cal, t.FireTimeAfter)
}

func (t *DailyTimeIntervalTrigger) Triggered(cal Calendar) {
	t.triggered(cal, t.FireTimeAfter)
}

func (t *DailyTimeIntervalTrigger) UpdateAfterMisfire(cal Calendar, now time.Time) {
	t.updateAfterMisfire(cal, now, t.FireTimeAfter)
}

func (t *DailyTimeIntervalTrigger) UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *DailyTimeIntervalTrigger) Validate() error {
	if err := t.validate(MisfireDoNothing); err != nil {
		return err
	}
	if _, ok := t.unit.fixed(); !ok {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: interval unit must be SECOND, MINUTE or HOUR", t.key)
	}
	if t.interval < 1 {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat interval must be >= 1", t.key)
	}
	if t.step() > 24*time.Hour {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat interval cannot exceed 24 hours", t.key)
	}
	if err := t.startTimeOfDay.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: start time of day: %v", t.key, err)
	}
	if err := t.endTimeOfDay.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: end time of day: %v", t.key, err)
	}
	if !t.startTimeOfDay.Before(t.endTimeOfDay) {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: start time of day must be before end time of day", t.key)
	}
	if len(t.DaysOfWeek()) == 0 {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: no days of week selected", t.key)
	}
	if t.repeatCount < RepeatIndefinitely {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat count must be >= 0 or RepeatIndefinitely", t.key)
	}
	return nil
}

func (t *DailyTimeIntervalTrigger) Clone() OperableTrigger {
	c := *t
	c.triggerBase = t.triggerBase.clone()
	return &c
}
