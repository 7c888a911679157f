package quartz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerBuilderDefaults(t *testing.T) {
	before := time.Now()
	tr, err := NewTrigger().ForJob(NewJobKey("j", "")).Build()
	require.NoError(t, err)

	st, ok := tr.(*SimpleTrigger)
	require.True(t, ok, "default schedule is a one-shot simple trigger")
	assert.Equal(t, 0, st.RepeatCount())
	assert.Equal(t, DefaultGroup, tr.Key().Group)
	assert.Equal(t, DefaultGroup, tr.JobKey().Group)
	assert.Equal(t, DefaultPriority, tr.Priority())
	assert.False(t, tr.StartTime().Before(before))
	assert.True(t, tr.EndTime().IsZero())

	id, err := uuid.Parse(tr.Key().Name)
	require.NoError(t, err, "generated names are UUIDs")
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestTriggerBuilderFields(t *testing.T) {
	end := t0.Add(24 * time.Hour)
	tr := NewTrigger().
		WithIdentity("t", "g").
		WithDescription("nightly").
		WithPriority(9).
		ModifiedByCalendar("holidays").
		StartAt(t0).
		EndAt(end).
		ForJobDetail(NewJob("noop").WithIdentity("j", "g").MustBuild()).
		UsingJobData("k", "v").
		WithSchedule(RepeatSecondlyForTotalCount(5, 10)).
		MustBuild()

	assert.Equal(t, NewTriggerKey("t", "g"), tr.Key())
	assert.Equal(t, NewJobKey("j", "g"), tr.JobKey())
	assert.Equal(t, "nightly", tr.Description())
	assert.Equal(t, 9, tr.Priority())
	assert.Equal(t, "holidays", tr.CalendarName())
	assert.Equal(t, t0, tr.StartTime())
	assert.Equal(t, end, tr.EndTime())
	assert.Equal(t, "v", tr.JobDataMap().GetString("k"))
	assert.False(t, tr.JobDataMap().Dirty())

	st := tr.(*SimpleTrigger)
	assert.Equal(t, 4, st.RepeatCount())
	assert.Equal(t, 10*time.Second, st.RepeatInterval())
}

func TestTriggerBuilderErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *TriggerBuilder
		target  error
	}{
		{"no job", NewTrigger(), ErrInvalidTrigger},
		{"end before start", NewTrigger().ForJob(NewJobKey("j", "")).StartAt(t0).EndAt(t0.Add(-time.Hour)), ErrInvalidTrigger},
		{"bad cron", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(CronSchedule("0 0 25 * * ?")), ErrInvalidCronExpression},
		{"nil cron expression", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(CronScheduleFromExpression(nil)), ErrInvalidCronExpression},
		{"bad hour", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(DailyAtHourAndMinute(24, 0)), ErrInvalidCronExpression},
		{"no weekdays", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(AtHourAndMinuteOnGivenDaysOfWeek(9, 0)), ErrInvalidCronExpression},
		{"bad day of month", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(MonthlyOnDayAndHourAndMinute(32, 9, 0)), ErrInvalidCronExpression},
		{"zero interval", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(CalendarIntervalSchedule().WithIntervalInWeeks(0)), ErrInvalidTrigger},
		{"daily with month unit", NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(DailyTimeIntervalSchedule().WithInterval(1, IntervalMonth)), ErrInvalidTrigger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			assert.ErrorIs(t, err, tt.target)
		})
	}

	assert.Panics(t, func() { NewTrigger().MustBuild() })
}

func TestCronScheduleHelpers(t *testing.T) {
	tests := []struct {
		name     string
		schedule *CronScheduleBuilder
		expected string
	}{
		{"daily", DailyAtHourAndMinute(9, 30), "0 30 9 ? * *"},
		{"weekdays", AtHourAndMinuteOnGivenDaysOfWeek(10, 0, time.Monday, time.Friday), "0 0 10 ? * 2,6"},
		{"weekly", WeeklyOnDayAndHourAndMinute(time.Sunday, 23, 5), "0 5 23 ? * 1"},
		{"monthly", MonthlyOnDayAndHourAndMinute(15, 6, 0), "0 0 6 15 * ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTrigger().ForJob(NewJobKey("j", "")).StartAt(t0).
				WithSchedule(tt.schedule.InTimeZone(time.UTC).WithMisfireHandlingInstructionFireAndProceed()).
				MustBuild()
			ct := tr.(*CronTrigger)
			assert.Equal(t, tt.expected, ct.CronExpression().String())
			assert.Equal(t, time.UTC, ct.Location())
			assert.Equal(t, MisfireFireOnceNow, ct.MisfireInstruction())
		})
	}
}

func TestScheduleMisfireInstructions(t *testing.T) {
	tests := []struct {
		name     string
		schedule ScheduleBuilder
		expected MisfireInstruction
	}{
		{"simple ignore", SimpleSchedule().WithMisfireHandlingInstructionIgnoreMisfires(), MisfireIgnorePolicy},
		{"simple fire now", SimpleSchedule().WithMisfireHandlingInstructionFireNow(), SimpleMisfireFireNow},
		{"simple now existing", RepeatMinutelyForever(1).WithMisfireHandlingInstructionNowWithExistingCount(), SimpleMisfireRescheduleNowWithExistingRepeatCount},
		{"simple now remaining", RepeatMinutelyForever(1).WithMisfireHandlingInstructionNowWithRemainingCount(), SimpleMisfireRescheduleNowWithRemainingRepeatCount},
		{"simple next remaining", RepeatHourlyForever(1).WithMisfireHandlingInstructionNextWithRemainingCount(), SimpleMisfireRescheduleNextWithRemainingCount},
		{"simple next existing", RepeatSecondlyForever(1).WithMisfireHandlingInstructionNextWithExistingCount(), SimpleMisfireRescheduleNextWithExistingCount},
		{"cron do nothing", CronSchedule("0 * * * * ?").WithMisfireHandlingInstructionDoNothing(), MisfireDoNothing},
		{"cron ignore", CronSchedule("0 * * * * ?").WithMisfireHandlingInstructionIgnoreMisfires(), MisfireIgnorePolicy},
		{"calendar fire and proceed", CalendarIntervalSchedule().WithMisfireHandlingInstructionFireAndProceed(), MisfireFireOnceNow},
		{"calendar ignore", CalendarIntervalSchedule().WithMisfireHandlingInstructionIgnoreMisfires(), MisfireIgnorePolicy},
		{"daily fire and proceed", DailyTimeIntervalSchedule().WithMisfireHandlingInstructionFireAndProceed(), MisfireFireOnceNow},
		{"daily ignore", DailyTimeIntervalSchedule().WithMisfireHandlingInstructionIgnoreMisfires(), MisfireIgnorePolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(tt.schedule).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tr.MisfireInstruction())
		})
	}
}

func TestCalendarIntervalScheduleOptions(t *testing.T) {
	tr := NewTrigger().ForJob(NewJobKey("j", "")).StartAt(t0).
		WithSchedule(CalendarIntervalSchedule().
			WithIntervalInDays(3).
			PreserveHourOfDayAcrossDaylightSavings(true).
			SkipDayIfHourDoesNotExist(true)).
		MustBuild()

	ci := tr.(*CalendarIntervalTrigger)
	n, unit := ci.RepeatInterval()
	assert.Equal(t, 3, n)
	assert.Equal(t, IntervalDay, unit)
	assert.True(t, ci.PreserveHourOfDayAcrossDaylightSavings())
	assert.True(t, ci.SkipDayIfHourDoesNotExist())
	assert.Equal(t, time.Local, ci.Location())

	tr = NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(CalendarIntervalSchedule().WithIntervalInYears(2)).MustBuild()
	_, unit = tr.(*CalendarIntervalTrigger).RepeatInterval()
	assert.Equal(t, IntervalYear, unit)
}

func TestDailyTimeIntervalScheduleDays(t *testing.T) {
	tests := []struct {
		name     string
		schedule *DailyTimeIntervalScheduleBuilder
		expected []time.Weekday
	}{
		{"every day", DailyTimeIntervalSchedule().OnEveryDay(), []time.Weekday{0, 1, 2, 3, 4, 5, 6}},
		{"weekdays", DailyTimeIntervalSchedule().OnMondayThroughFriday(), []time.Weekday{1, 2, 3, 4, 5}},
		{"weekend", DailyTimeIntervalSchedule().OnSaturdayAndSunday(), []time.Weekday{time.Sunday, time.Saturday}},
		{"custom", DailyTimeIntervalSchedule().OnDaysOfTheWeek(time.Wednesday), []time.Weekday{time.Wednesday}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTrigger().ForJob(NewJobKey("j", "")).WithSchedule(tt.schedule.WithIntervalInSeconds(30)).MustBuild()
			dt := tr.(*DailyTimeIntervalTrigger)
			assert.Equal(t, tt.expected, dt.DaysOfWeek())
			n, unit := dt.RepeatInterval()
			assert.Equal(t, 30, n)
			assert.Equal(t, IntervalSecond, unit)
		})
	}
}
