package quartz

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// ScheduleBuilder produces the variant-specific part of a trigger.
type ScheduleBuilder interface {
	build() (OperableTrigger, error)
}

// TriggerBuilder assembles a trigger and validates it on Build.
//
// Example:
//
//	trigger, err := quartz.NewTrigger().
//	    WithIdentity("nightly", "reports").
//	    ForJob(quartz.NewJobKey("report", "")).
//	    WithSchedule(quartz.CronSchedule("0 30 2 * * ?").InTimeZone(berlin)).
//	    Build()
type TriggerBuilder struct {
	key          TriggerKey
	jobKey       JobKey
	description  string
	calendarName string
	priority     int
	startTime    time.Time
	endTime      time.Time
	jobData      JobDataMap
	schedule     ScheduleBuilder
}

// NewTrigger returns a builder for a trigger with the default priority.
func NewTrigger() *TriggerBuilder {
	return &TriggerBuilder{priority: DefaultPriority}
}

// WithIdentity sets the trigger key; an empty group selects DefaultGroup.
func (b *TriggerBuilder) WithIdentity(name, group string) *TriggerBuilder {
	b.key = NewTriggerKey(name, group)
	return b
}

// WithKey sets the trigger key.
func (b *TriggerBuilder) WithKey(key TriggerKey) *TriggerBuilder {
	b.key = key
	return b
}

func (b *TriggerBuilder) WithDescription(description string) *TriggerBuilder {
	b.description = description
	return b
}

// WithPriority sets the tie-breaker used when fire times are equal.
func (b *TriggerBuilder) WithPriority(priority int) *TriggerBuilder {
	b.priority = priority
	return b
}

// ModifiedByCalendar names the calendar that excludes fire times.
func (b *TriggerBuilder) ModifiedByCalendar(name string) *TriggerBuilder {
	b.calendarName = name
	return b
}

func (b *TriggerBuilder) StartAt(t time.Time) *TriggerBuilder {
	b.startTime = t
	return b
}

// StartNow sets the start time to the current instant.
func (b *TriggerBuilder) StartNow() *TriggerBuilder {
	b.startTime = time.Now()
	return b
}

func (b *TriggerBuilder) EndAt(t time.Time) *TriggerBuilder {
	b.endTime = t
	return b
}

// ForJob sets the job the trigger fires.
func (b *TriggerBuilder) ForJob(key JobKey) *TriggerBuilder {
	b.jobKey = key
	return b
}

// ForJobDetail sets the job the trigger fires from a JobDetail.
func (b *TriggerBuilder) ForJobDetail(job *JobDetail) *TriggerBuilder {
	b.jobKey = job.Key()
	return b
}

// UsingJobData adds a value to the trigger's job data.
func (b *TriggerBuilder) UsingJobData(key string, value any) *TriggerBuilder {
	b.jobData.Put(key, value)
	return b
}

// SetJobData replaces the trigger's job data.
func (b *TriggerBuilder) SetJobData(data JobDataMap) *TriggerBuilder {
	b.jobData = data.Clone()
	return b
}

// WithSchedule selects the trigger variant. Without it Build produces a
// SimpleTrigger that fires once.
func (b *TriggerBuilder) WithSchedule(s ScheduleBuilder) *TriggerBuilder {
	b.schedule = s
	return b
}

// Build returns the validated trigger. A missing key is generated and a
// missing start time defaults to now.
func (b *TriggerBuilder) Build() (OperableTrigger, error) {
	s := b.schedule
	if s == nil {
		s = SimpleSchedule()
	}
	t, err := s.build()
	if err != nil {
		return nil, err
	}

	key := b.key
	if key.IsZero() {
		key = NewTriggerKey(generateName(), DefaultGroup)
	}
	start := b.startTime
	if start.IsZero() {
		start = time.Now()
	}
	t.SetKey(key)
	t.SetJobKey(b.jobKey)
	t.SetDescription(b.description)
	t.SetCalendarName(b.calendarName)
	t.SetPriority(b.priority)
	t.SetStartTime(start)
	t.SetEndTime(b.endTime)
	data := b.jobData.Clone()
	data.ClearDirtyFlag()
	t.SetJobDataMap(data)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustBuild is like Build but panics on error.
func (b *TriggerBuilder) MustBuild() OperableTrigger {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// SimpleScheduleBuilder configures a SimpleTrigger.
type SimpleScheduleBuilder struct {
	interval time.Duration
	repeat   int
	misfire  MisfireInstruction
}

// SimpleSchedule returns a schedule firing once.
func SimpleSchedule() *SimpleScheduleBuilder {
	return &SimpleScheduleBuilder{}
}

// RepeatSecondlyForever fires every n seconds indefinitely.
func RepeatSecondlyForever(n int) *SimpleScheduleBuilder {
	return SimpleSchedule().WithInterval(time.Duration(n) * time.Second).RepeatForever()
}

// RepeatMinutelyForever fires every n minutes indefinitely.
func RepeatMinutelyForever(n int) *SimpleScheduleBuilder {
	return SimpleSchedule().WithInterval(time.Duration(n) * time.Minute).RepeatForever()
}

// RepeatHourlyForever fires every n hours indefinitely.
func RepeatHourlyForever(n int) *SimpleScheduleBuilder {
	return SimpleSchedule().WithInterval(time.Duration(n) * time.Hour).RepeatForever()
}

// RepeatSecondlyForTotalCount fires total times, n seconds apart.
func RepeatSecondlyForTotalCount(total, n int) *SimpleScheduleBuilder {
	return SimpleSchedule().WithInterval(time.Duration(n) * time.Second).WithRepeatCount(total - 1)
}

func (b *SimpleScheduleBuilder) WithInterval(d time.Duration) *SimpleScheduleBuilder {
	b.interval = d
	return b
}

// WithRepeatCount sets the number of repeats after the first firing.
func (b *SimpleScheduleBuilder) WithRepeatCount(n int) *SimpleScheduleBuilder {
	b.repeat = n
	return b
}

func (b *SimpleScheduleBuilder) RepeatForever() *SimpleScheduleBuilder {
	b.repeat = RepeatIndefinitely
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionIgnoreMisfires() *SimpleScheduleBuilder {
	b.misfire = MisfireIgnorePolicy
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionFireNow() *SimpleScheduleBuilder {
	b.misfire = SimpleMisfireFireNow
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionNowWithExistingCount() *SimpleScheduleBuilder {
	b.misfire = SimpleMisfireRescheduleNowWithExistingRepeatCount
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionNowWithRemainingCount() *SimpleScheduleBuilder {
	b.misfire = SimpleMisfireRescheduleNowWithRemainingRepeatCount
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionNextWithRemainingCount() *SimpleScheduleBuilder {
	b.misfire = SimpleMisfireRescheduleNextWithRemainingCount
	return b
}

func (b *SimpleScheduleBuilder) WithMisfireHandlingInstructionNextWithExistingCount() *SimpleScheduleBuilder {
	b.misfire = SimpleMisfireRescheduleNextWithExistingCount
	return b
}

func (b *SimpleScheduleBuilder) build() (OperableTrigger, error) {
	t := NewSimpleTrigger(TriggerKey{}, JobKey{}, time.Time{}, b.repeat, b.interval)
	t.SetMisfireInstruction(b.misfire)
	return t, nil
}

// CronScheduleBuilder configures a CronTrigger.
type CronScheduleBuilder struct {
	expr    *CronExpression
	err     error
	loc     *time.Location
	misfire MisfireInstruction
}

// CronSchedule parses expr in the local time zone. A parse error is
// reported by TriggerBuilder.Build.
func CronSchedule(expr string) *CronScheduleBuilder {
	e, err := ParseCronExpression(expr)
	return &CronScheduleBuilder{expr: e, err: err}
}

// CronScheduleFromExpression uses an already parsed expression.
func CronScheduleFromExpression(expr *CronExpression) *CronScheduleBuilder {
	if expr == nil {
		return &CronScheduleBuilder{err: errors.Wrap(ErrInvalidCronExpression, "cron expression cannot be nil")}
	}
	return &CronScheduleBuilder{expr: expr}
}

// DailyAtHourAndMinute fires every day at the given time.
func DailyAtHourAndMinute(hour, minute int) *CronScheduleBuilder {
	if err := HourAndMinuteOfDay(hour, minute).Validate(); err != nil {
		return &CronScheduleBuilder{err: errors.Wrap(ErrInvalidCronExpression, err.Error())}
	}
	return CronSchedule(fmt.Sprintf("0 %d %d ? * *", minute, hour))
}

// AtHourAndMinuteOnGivenDaysOfWeek fires at the given time on each day listed.
func AtHourAndMinuteOnGivenDaysOfWeek(hour, minute int, days ...time.Weekday) *CronScheduleBuilder {
	if len(days) == 0 {
		return &CronScheduleBuilder{err: errors.Wrap(ErrInvalidCronExpression, "at least one day of week is required")}
	}
	if err := HourAndMinuteOfDay(hour, minute).Validate(); err != nil {
		return &CronScheduleBuilder{err: errors.Wrap(ErrInvalidCronExpression, err.Error())}
	}
	dow := ""
	for i, d := range days {
		if i > 0 {
			dow += ","
		}
		dow += fmt.Sprint(int(d) + 1)
	}
	return CronSchedule(fmt.Sprintf("0 %d %d ? * %s", minute, hour, dow))
}

// WeeklyOnDayAndHourAndMinute fires once a week at the given time.
func WeeklyOnDayAndHourAndMinute(day time.Weekday, hour, minute int) *CronScheduleBuilder {
	return AtHourAndMinuteOnGivenDaysOfWeek(hour, minute, day)
}

// MonthlyOnDayAndHourAndMinute fires once a month at the given time.
func MonthlyOnDayAndHourAndMinute(day, hour, minute int) *CronScheduleBuilder {
	if day < 1 || day > 31 {
		return &CronScheduleBuilder{err: errors.Wrapf(ErrInvalidCronExpression, "day of month %d out of range 1-31", day)}
	}
	if err := HourAndMinuteOfDay(hour, minute).Validate(); err != nil {
		return &CronScheduleBuilder{err: errors.Wrap(ErrInvalidCronExpression, err.Error())}
	}
	return CronSchedule(fmt.Sprintf("0 %d %d %d * ?", minute, hour, day))
}

// InTimeZone evaluates the expression in loc.
func (b *CronScheduleBuilder) InTimeZone(loc *time.Location) *CronScheduleBuilder {
	b.loc = loc
	return b
}

func (b *CronScheduleBuilder) WithMisfireHandlingInstructionIgnoreMisfires() *CronScheduleBuilder {
	b.misfire = MisfireIgnorePolicy
	return b
}

func (b *CronScheduleBuilder) WithMisfireHandlingInstructionFireAndProceed() *CronScheduleBuilder {
	b.misfire = MisfireFireOnceNow
	return b
}

func (b *CronScheduleBuilder) WithMisfireHandlingInstructionDoNothing() *CronScheduleBuilder {
	b.misfire = MisfireDoNothing
	return b
}

func (b *CronScheduleBuilder) build() (OperableTrigger, error) {
	if b.err != nil {
		return nil, b.err
	}
	expr := b.expr
	if b.loc != nil {
		expr = expr.WithLocation(b.loc)
	}
	t := NewCronTrigger(TriggerKey{}, JobKey{}, expr, time.Time{})
	t.SetMisfireInstruction(b.misfire)
	return t, nil
}

// CalendarIntervalScheduleBuilder configures a CalendarIntervalTrigger.
type CalendarIntervalScheduleBuilder struct {
	interval     int
	unit         IntervalUnit
	loc          *time.Location
	preserveHour bool
	skipDay      bool
	misfire      MisfireInstruction
}

// CalendarIntervalSchedule returns a schedule firing every day.
func CalendarIntervalSchedule() *CalendarIntervalScheduleBuilder {
	return &CalendarIntervalScheduleBuilder{interval: 1, unit: IntervalDay}
}

// WithInterval sets the interval and its unit.
func (b *CalendarIntervalScheduleBuilder) WithInterval(n int, unit IntervalUnit) *CalendarIntervalScheduleBuilder {
	b.interval, b.unit = n, unit
	return b
}

func (b *CalendarIntervalScheduleBuilder) WithIntervalInDays(n int) *CalendarIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalDay)
}

func (b *CalendarIntervalScheduleBuilder) WithIntervalInWeeks(n int) *CalendarIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalWeek)
}

func (b *CalendarIntervalScheduleBuilder) WithIntervalInMonths(n int) *CalendarIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalMonth)
}

func (b *CalendarIntervalScheduleBuilder) WithIntervalInYears(n int) *CalendarIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalYear)
}

func (b *CalendarIntervalScheduleBuilder) InTimeZone(loc *time.Location) *CalendarIntervalScheduleBuilder {
	b.loc = loc
	return b
}

func (b *CalendarIntervalScheduleBuilder) PreserveHourOfDayAcrossDaylightSavings(v bool) *CalendarIntervalScheduleBuilder {
	b.preserveHour = v
	return b
}

func (b *CalendarIntervalScheduleBuilder) SkipDayIfHourDoesNotExist(v bool) *CalendarIntervalScheduleBuilder {
	b.skipDay = v
	return b
}

func (b *CalendarIntervalScheduleBuilder) WithMisfireHandlingInstructionIgnoreMisfires() *CalendarIntervalScheduleBuilder {
	b.misfire = MisfireIgnorePolicy
	return b
}

func (b *CalendarIntervalScheduleBuilder) WithMisfireHandlingInstructionFireAndProceed() *CalendarIntervalScheduleBuilder {
	b.misfire = MisfireFireOnceNow
	return b
}

func (b *CalendarIntervalScheduleBuilder) WithMisfireHandlingInstructionDoNothing() *CalendarIntervalScheduleBuilder {
	b.misfire = MisfireDoNothing
	return b
}

func (b *CalendarIntervalScheduleBuilder) build() (OperableTrigger, error) {
	t := NewCalendarIntervalTrigger(TriggerKey{}, JobKey{}, time.Time{}, b.interval, b.unit)
	t.SetLocation(b.loc)
	t.SetPreserveHourOfDayAcrossDaylightSavings(b.preserveHour)
	t.SetSkipDayIfHourDoesNotExist(b.skipDay)
	t.SetMisfireInstruction(b.misfire)
	return t, nil
}

// DailyTimeIntervalScheduleBuilder configures a DailyTimeIntervalTrigger.
type DailyTimeIntervalScheduleBuilder struct {
	interval   int
	unit       IntervalUnit
	startOfDay TimeOfDay
	endOfDay   TimeOfDay
	endCount   int
	days       []time.Weekday
	repeat     int
	loc        *time.Location
	misfire    MisfireInstruction
}

// DailyTimeIntervalSchedule returns a schedule firing every minute of every
// day.
func DailyTimeIntervalSchedule() *DailyTimeIntervalScheduleBuilder {
	return &DailyTimeIntervalScheduleBuilder{
		interval: 1,
		unit:     IntervalMinute,
		endOfDay: NewTimeOfDay(23, 59, 59),
		repeat:   RepeatIndefinitely,
	}
}

func (b *DailyTimeIntervalScheduleBuilder) WithInterval(n int, unit IntervalUnit) *DailyTimeIntervalScheduleBuilder {
	b.interval, b.unit = n, unit
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) WithIntervalInSeconds(n int) *DailyTimeIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalSecond)
}

func (b *DailyTimeIntervalScheduleBuilder) WithIntervalInMinutes(n int) *DailyTimeIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalMinute)
}

func (b *DailyTimeIntervalScheduleBuilder) WithIntervalInHours(n int) *DailyTimeIntervalScheduleBuilder {
	return b.WithInterval(n, IntervalHour)
}

// OnDaysOfTheWeek restricts firing to the given days.
func (b *DailyTimeIntervalScheduleBuilder) OnDaysOfTheWeek(days ...time.Weekday) *DailyTimeIntervalScheduleBuilder {
	b.days = days
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) OnMondayThroughFriday() *DailyTimeIntervalScheduleBuilder {
	return b.OnDaysOfTheWeek(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

func (b *DailyTimeIntervalScheduleBuilder) OnSaturdayAndSunday() *DailyTimeIntervalScheduleBuilder {
	return b.OnDaysOfTheWeek(time.Saturday, time.Sunday)
}

func (b *DailyTimeIntervalScheduleBuilder) OnEveryDay() *DailyTimeIntervalScheduleBuilder {
	b.days = nil
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) StartingDailyAt(t TimeOfDay) *DailyTimeIntervalScheduleBuilder {
	b.startOfDay = t
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) EndingDailyAt(t TimeOfDay) *DailyTimeIntervalScheduleBuilder {
	b.endOfDay = t
	b.endCount = 0
	return b
}

// EndingDailyAfterCount ends each day's window after n firings.
func (b *DailyTimeIntervalScheduleBuilder) EndingDailyAfterCount(n int) *DailyTimeIntervalScheduleBuilder {
	b.endCount = n
	return b
}

// WithRepeatCount limits the total number of repeats after the first firing.
func (b *DailyTimeIntervalScheduleBuilder) WithRepeatCount(n int) *DailyTimeIntervalScheduleBuilder {
	b.repeat = n
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) InTimeZone(loc *time.Location) *DailyTimeIntervalScheduleBuilder {
	b.loc = loc
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) WithMisfireHandlingInstructionIgnoreMisfires() *DailyTimeIntervalScheduleBuilder {
	b.misfire = MisfireIgnorePolicy
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) WithMisfireHandlingInstructionFireAndProceed() *DailyTimeIntervalScheduleBuilder {
	b.misfire = MisfireFireOnceNow
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) WithMisfireHandlingInstructionDoNothing() *DailyTimeIntervalScheduleBuilder {
	b.misfire = MisfireDoNothing
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) build() (OperableTrigger, error) {
	t := NewDailyTimeIntervalTrigger(TriggerKey{}, JobKey{}, time.Time{}, b.interval, b.unit)
	end := b.endOfDay
	if b.endCount > 0 {
		step, ok := b.unit.fixed()
		if !ok || b.interval < 1 {
			return nil, errors.Wrap(ErrInvalidTrigger, "ending daily after count requires a second, minute or hour interval")
		}
		last := b.startOfDay.seconds() + int((time.Duration(b.interval*(b.endCount-1))*step)/time.Second)
		if last >= 24*60*60 {
			return nil, errors.Wrapf(ErrInvalidTrigger, "%d firings do not fit in a day from %s", b.endCount, b.startOfDay)
		}
		end = NewTimeOfDay(last/3600, last/60%60, last%60)
	}
	t.SetTimeWindow(b.startOfDay, end)
	if len(b.days) > 0 {
		t.SetDaysOfWeek(b.days...)
	}
	t.SetRepeatCount(b.repeat)
	t.SetLocation(b.loc)
	t.SetMisfireInstruction(b.misfire)
	return t, nil
}
