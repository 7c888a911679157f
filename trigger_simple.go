package quartz

import (
	"time"

	"github.com/cockroachdb/errors"
)

// SimpleTrigger fires at its start time and then repeatCount more times,
// repeatInterval apart. A repeat count of RepeatIndefinitely never exhausts.
type SimpleTrigger struct {
	triggerBase
	repeatCount    int
	repeatInterval time.Duration
}

// NewSimpleTrigger returns a trigger firing once at start and then repeat
// more times every interval.
func NewSimpleTrigger(key TriggerKey, jobKey JobKey, start time.Time, repeat int, interval time.Duration) *SimpleTrigger {
	t := &SimpleTrigger{triggerBase: newTriggerBase(), repeatCount: repeat, repeatInterval: interval}
	t.key = key
	t.jobKey = jobKey
	t.startTime = start
	return t
}

// RepeatCount returns the number of repeats after the first firing.
func (t *SimpleTrigger) RepeatCount() int { return t.repeatCount }

// RepeatInterval returns the time between firings.
func (t *SimpleTrigger) RepeatInterval() time.Duration { return t.repeatInterval }

// SetRepeatCount sets the number of repeats after the first firing.
func (t *SimpleTrigger) SetRepeatCount(n int) { t.repeatCount = n }

// SetRepeatInterval sets the time between firings.
func (t *SimpleTrigger) SetRepeatInterval(d time.Duration) { t.repeatInterval = d }

func (t *SimpleTrigger) FireTimeAfter(after time.Time) time.Time {
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		return time.Time{}
	}
	if after.IsZero() || after.Before(t.startTime) {
		if !t.endTime.IsZero() && !t.startTime.Before(t.endTime) {
			return time.Time{}
		}
		return t.startTime
	}
	if t.repeatCount == 0 || t.repeatInterval <= 0 {
		return time.Time{}
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	executed := int(after.Sub(t.startTime)/t.repeatInterval) + 1
	if t.repeatCount != RepeatIndefinitely && executed > t.repeatCount {
		return time.Time{}
	}
	next := t.startTime.Add(time.Duration(executed) * t.repeatInterval)
	if !t.endTime.IsZero() && !next.Before(t.endTime) {
		return time.Time{}
	}
	return next
}

// fireTimeBefore returns the last schedule instant before end.
func (t *SimpleTrigger) fireTimeBefore(end time.Time) time.Time {
	if end.Before(t.startTime) || t.repeatInterval <= 0 {
		return time.Time{}
	}
	n := t.timesFiredBetween(t.startTime, end)
	ft := t.startTime.Add(time.Duration(n) * t.repeatInterval)
	if !ft.Before(end) {
		if n == 0 {
			return time.Time{}
		}
		ft = ft.Add(-t.repeatInterval)
	}
	return ft
}

func (t *SimpleTrigger) timesFiredBetween(start, end time.Time) int {
	if t.repeatInterval <= 0 || end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / t.repeatInterval)
}

func (t *SimpleTrigger) FinalFireTime() time.Time {
	switch {
	case t.repeatCount == 0:
		return t.startTime
	case t.repeatCount == RepeatIndefinitely:
		if t.endTime.IsZero() {
			return time.Time{}
		}
		return t.fireTimeBefore(t.endTime)
	}
	last := t.startTime.Add(time.Duration(t.repeatCount) * t.repeatInterval)
	if t.endTime.IsZero() || last.Before(t.endTime) {
		return last
	}
	return t.fireTimeBefore(t.endTime)
}

func (t *SimpleTrigger) ComputeFirstFireTime(cal Calendar) time.Time {
	first := t.startTime
	if !t.endTime.IsZero() && !first.Before(t.endTime) {
		first = time.Time{}
	}
	return t.computeFirstFireTime(first, cal, t.FireTimeAfter)
}

func (t *SimpleTrigger) Triggered(cal Calendar) {
	t.triggered(cal, t.FireTimeAfter)
}

func (t *SimpleTrigger) UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

// resolvedMisfireInstruction maps the smart policy and FireNow on a
// repeating trigger to the instruction actually applied.
func (t *SimpleTrigger) resolvedMisfireInstruction() MisfireInstruction {
	instr := t.misfireInstruction
	switch {
	case instr == MisfireSmartPolicy && t.repeatCount == 0:
		return SimpleMisfireFireNow
	case instr == MisfireSmartPolicy && t.repeatCount == RepeatIndefinitely:
		return SimpleMisfireRescheduleNextWithRemainingCount
	case instr == MisfireSmartPolicy:
		return SimpleMisfireRescheduleNowWithExistingRepeatCount
	case instr == SimpleMisfireFireNow && t.repeatCount != 0:
		return SimpleMisfireRescheduleNowWithRemainingRepeatCount
	}
	return instr
}

func (t *SimpleTrigger) UpdateAfterMisfire(cal Calendar, now time.Time) {
	switch t.resolvedMisfireInstruction() {
	case MisfireIgnorePolicy:
	case SimpleMisfireFireNow:
		t.nextFireTime = now
	case SimpleMisfireRescheduleNextWithExistingCount:
		t.nextFireTime = skipExcluded(t.FireTimeAfter(now), cal, t.FireTimeAfter)
	case SimpleMisfireRescheduleNextWithRemainingCount:
		next := skipExcluded(t.FireTimeAfter(now), cal, t.FireTimeAfter)
		if !next.IsZero() {
			t.timesTriggered += t.timesFiredBetween(t.nextFireTime, next)
		}
		t.nextFireTime = next
	case SimpleMisfireRescheduleNowWithExistingRepeatCount:
		if t.repeatCount != 0 && t.repeatCount != RepeatIndefinitely {
			t.repeatCount -= t.timesTriggered
			t.timesTriggered = 0
		}
		t.rescheduleAt(now)
	case SimpleMisfireRescheduleNowWithRemainingRepeatCount:
		missed := t.timesFiredBetween(t.nextFireTime, now)
		if t.repeatCount != 0 && t.repeatCount != RepeatIndefinitely {
			t.repeatCount = max(t.repeatCount-(t.timesTriggered+missed), 0)
			t.timesTriggered = 0
		}
		t.rescheduleAt(now)
	}
}

// rescheduleAt restarts the schedule at now unless the end time passed.
func (t *SimpleTrigger) rescheduleAt(now time.Time) {
	if !t.endTime.IsZero() && t.endTime.Before(now) {
		t.nextFireTime = time.Time{}
		return
	}
	t.startTime = now
	t.nextFireTime = now
}

func (t *SimpleTrigger) Validate() error {
	if err := t.validate(SimpleMisfireRescheduleNextWithExistingCount); err != nil {
		return err
	}
	if t.repeatCount < RepeatIndefinitely {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat count must be >= 0 or RepeatIndefinitely", t.key)
	}
	if t.repeatCount != 0 && t.repeatInterval < time.Millisecond {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: repeat interval must be at least 1ms", t.key)
	}
	return nil
}

func (t *SimpleTrigger) Clone() OperableTrigger {
	c := *t
	c.triggerBase = t.triggerBase.clone()
	return &c
}
