package quartz

import (
	"time"

	"github.com/cockroachdb/errors"
)

// CronTrigger fires at the instants matched by a CronExpression, bounded by
// its start and end time. The end time is inclusive.
type CronTrigger struct {
	triggerBase
	expr *CronExpression
}

// NewCronTrigger returns a trigger for expr starting at start.
func NewCronTrigger(key TriggerKey, jobKey JobKey, expr *CronExpression, start time.Time) *CronTrigger {
	t := &CronTrigger{triggerBase: newTriggerBase(), expr: expr}
	t.key = key
	t.jobKey = jobKey
	t.startTime = start
	return t
}

// CronExpression returns the schedule.
func (t *CronTrigger) CronExpression() *CronExpression { return t.expr }

// SetCronExpression replaces the schedule. The next fire time is not
// recomputed.
func (t *CronTrigger) SetCronExpression(expr *CronExpression) { t.expr = expr }

// Location returns the time zone the expression is evaluated in.
func (t *CronTrigger) Location() *time.Location {
	if t.expr == nil {
		return time.Local
	}
	return t.expr.Location()
}

func (t *CronTrigger) FireTimeAfter(after time.Time) time.Time {
	if t.expr == nil {
		return time.Time{}
	}
	if start := ceilSecond(t.startTime); after.IsZero() || start.After(after) {
		after = start.Add(-time.Second)
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	next := t.expr.NextFireTimeAfter(after)
	if !next.IsZero() && !t.endTime.IsZero() && next.After(t.endTime) {
		return time.Time{}
	}
	return next
}

// FinalFireTime always returns the zero time: a cron schedule's last
// occurrence is not computed.
func (t *CronTrigger) FinalFireTime() time.Time { return time.Time{} }

func (t *CronTrigger) ComputeFirstFireTime(cal Calendar) time.Time {
	return t.computeFirstFireTime(t.FireTimeAfter(t.startTime.Add(-time.Second)), cal, t.FireTimeAfter)
}

func (t *CronTrigger) Triggered(cal Calendar) {
	t.triggered(cal, t.FireTimeAfter)
}

func (t *CronTrigger) UpdateAfterMisfire(cal Calendar, now time.Time) {
	t.updateAfterMisfire(cal, now, t.FireTimeAfter)
}

func (t *CronTrigger) UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

// WillFireOn reports whether the trigger fires at t, to the second.
func (t *CronTrigger) WillFireOn(at time.Time) bool {
	at = at.Truncate(time.Second)
	return t.FireTimeAfter(at.Add(-time.Second)).Equal(at)
}

func (t *CronTrigger) Validate() error {
	if err := t.validate(MisfireDoNothing); err != nil {
		return err
	}
	if t.expr == nil {
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s has no cron expression", t.key)
	}
	return nil
}

func (t *CronTrigger) Clone() OperableTrigger {
	c := *t
	c.triggerBase = t.triggerBase.clone()
	return &c
}
