/*
Package quartz implements an in-memory job store, a Quartz-compatible cron
expression engine, calendars and four trigger variants, plus a small
scheduler driving them.

# Installation

To download the package, run:

	go get github.com/netresearch/go-quartz

Import it in your program as:

	import quartz "github.com/netresearch/go-quartz"

It requires Go 1.25 or later.

# Usage

Jobs are registered by type. A JobDetail names the type, its triggers decide
when it fires:

	store := quartz.NewMemoryStore()
	s := quartz.NewScheduler(store, quartz.WithChain(quartz.Recover(quartz.DefaultLogger)))
	s.RegisterJob("report", quartz.JobFunc(func(ctx context.Context, jc *quartz.JobExecutionContext) error {
		fmt.Println("report for", jc.ScheduledFireTime)
		return nil
	}))

	job := quartz.NewJob("report").WithIdentity("daily", "reports").MustBuild()
	trigger := quartz.NewTrigger().
		WithIdentity("daily", "reports").
		WithSchedule(quartz.CronSchedule("0 30 8 ? * MON-FRI")).
		MustBuild()
	if _, err := s.ScheduleJob(job, trigger); err != nil {
		log.Fatal(err)
	}
	s.Start()
	..
	<-s.Stop().Done() // wait for running jobs

The store can also be driven directly, without a Scheduler:

	triggers := store.AcquireNextTriggers(time.Now().Add(30*time.Second), 10, 0)
	bundles := store.TriggersFired(triggers)
	// execute bundles[i].Job ...
	store.TriggeredJobComplete(bundles[i].Trigger, bundles[i].Job, quartz.InstructionNoop)

# CRON Expression Format

A cron expression has 6 or 7 whitespace-separated fields:

	Field name   | Mandatory? | Allowed values   | Allowed special characters
	----------   | ---------- | --------------   | --------------------------
	Seconds      | Yes        | 0-59             | , - * /
	Minutes      | Yes        | 0-59             | , - * /
	Hours        | Yes        | 0-23             | , - * /
	Day of month | Yes        | 1-31             | , - * ? / L W
	Month        | Yes        | 1-12 or JAN-DEC  | , - * /
	Day of week  | Yes        | 1-7 or SUN-SAT   | , - * ? / L #
	Year         | No         | 1970-2099        | , - * /

Day of week 1 is Sunday. Names are case insensitive. Exactly one of day of
month and day of week must be "?".

# Special Characters

	*    all values
	?    no specific value (day fields only)
	-    range; ranges may wrap, e.g. 22-2 or FRI-MON
	,    list
	/    increment, e.g. 0/15 or 5/10; a range before / bounds it
	L    last day of month (L, L-3), or as suffix in day of week the last
	     such weekday of the month (6L is the last Friday); L alone in day of
	     week means Saturday
	W    nearest weekday to the given day of month, never leaving the month
	     (15W, LW)
	#    nth weekday of the month, 1 to 5 (6#3 is the third Friday)

An expression may start with TZ=Zone or CRON_TZ=Zone to select the
location it is evaluated in.

# Triggers

	SimpleTrigger               fixed interval, repeated a number of times or forever
	CronTrigger                 a cron expression bounded by start and end time
	CalendarIntervalTrigger     calendar arithmetic: every n days, weeks, months or years
	DailyTimeIntervalTrigger    every interval inside a daily window on selected weekdays

Each trigger can reference a Calendar by name; fire times the calendar
excludes are skipped. Misfire instructions decide what happens to a trigger
found more than the misfire threshold (DefaultMisfireThreshold) late.

# Daylight Saving Time (DST) Handling

Fire times in a spring-forward gap move forward like time.Date normalizes
them: a 02:30 job on a day without 02:30 fires at 03:30. In a fall-back
overlap a cron trigger fires once, at the earliest instant after the previous
fire time.

CalendarIntervalTrigger with PreserveHourOfDayAcrossDaylightSavings keeps the
wall clock hour of its start time; SkipDayIfHourDoesNotExist skips the day
instead of shifting the hour.

# Store Semantics

A trigger is in one of the states normal, paused, complete, error or blocked
(see TriggerState). Jobs that DisallowConcurrentExecution block their other
triggers while one firing runs. Pausing a group also pauses triggers added to
it later, until the group is resumed. Removing the last trigger of a non
durable job removes the job.

# Job Wrappers

Wrappers decorate every executed job:

	Recover    turns panics into a *PanicError
	Timeout    cancels the job's context and stops waiting after a deadline

Errors returned by jobs are logged. A *JobExecutionError asks the store to
refire immediately or to unschedule the firing trigger or all triggers of the
job.

# Thread Safety

MemoryStore guards all state with a single mutex; every method is safe for
concurrent use. Triggers and jobs handed in or out are copies.

# Logging

Logger is a subset of logr. Adapters exist for the standard log package
(PrintfLogger, VerbosePrintfLogger), log/slog (NewSlogLogger) and zap
(NewZapLogger).

# Scheduler Events

A SchedulerSignaler receives misfire, finalization and scheduling change
notifications from the store. SignalerHooks adapts plain funcs;
CloudEventSignaler publishes them as CloudEvents:

	client, _ := cloudevents.NewClientHTTP(cloudevents.WithTarget("http://localhost:8080/"))
	events := quartz.NewCloudEventSignaler(client, "my-service")
	store := quartz.NewMemoryStore(quartz.WithSignaler(events))

# Testing with FakeClock

	clock := quartz.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := quartz.NewMemoryStore(quartz.WithStoreClock(clock))
	s := quartz.NewScheduler(store, quartz.WithClock(clock))
	s.Start()
	clock.BlockUntil(1)     // scheduler is waiting on its timer
	clock.Advance(time.Hour)
*/
package quartz
