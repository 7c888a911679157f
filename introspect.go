package quartz

import "time"

// ComputeFireTimes returns up to n fire times the trigger would produce from
// its start, skipping the instants cal excludes. The trigger itself is not
// modified; a clone is advanced instead.
//
// This is useful for:
//   - Previews of upcoming executions
//   - Validating a schedule before storing it
//   - Debugging misbehaving calendars
//
// Example:
//
//	trigger, _ := quartz.NewTrigger().
//	    ForJob(quartz.NewJobKey("report", "")).
//	    WithSchedule(quartz.CronSchedule("0 0 9 ? * MON-FRI")).
//	    Build()
//	for _, t := range quartz.ComputeFireTimes(trigger, nil, 10) {
//	    fmt.Println("Next run:", t)
//	}
func ComputeFireTimes(trigger Trigger, cal Calendar, n int) []time.Time {
	if trigger == nil || n <= 0 {
		return nil
	}

	t := trigger.Clone()
	t.ComputeFirstFireTime(cal)

	times := make([]time.Time, 0, n)
	for range n {
		next := t.NextFireTime()
		if next.IsZero() {
			break
		}
		times = append(times, next)
		t.Triggered(cal)
	}
	return times
}

// ComputeFireTimesBetween returns the fire times in the range [from, to).
// If limit is 0 or negative, no limit is applied.
//
// WARNING: For high-frequency triggers over long ranges, this can return
// many results.
func ComputeFireTimesBetween(trigger Trigger, cal Calendar, from, to time.Time, limit int) []time.Time {
	if trigger == nil || !from.Before(to) {
		return nil
	}

	t := trigger.Clone()
	if t.StartTime().Before(from) {
		t.SetStartTime(from)
	}
	t.ComputeFirstFireTime(cal)

	var times []time.Time
	for {
		next := t.NextFireTime()
		if next.IsZero() || !next.Before(to) {
			break
		}
		if !next.Before(from) {
			times = append(times, next)
		}
		if limit > 0 && len(times) >= limit {
			break
		}
		t.Triggered(cal)
	}
	return times
}

// NextFireTimes returns the next n instants after t matched by expr.
func NextFireTimes(expr *CronExpression, t time.Time, n int) []time.Time {
	if expr == nil || n <= 0 {
		return nil
	}

	times := make([]time.Time, 0, n)
	current := t
	for range n {
		next := expr.NextFireTimeAfter(current)
		if next.IsZero() {
			break
		}
		times = append(times, next)
		current = next
	}
	return times
}
