package quartz

import (
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultPriority is the priority of triggers built without WithPriority.
const DefaultPriority = 5

// RepeatIndefinitely is the repeat count of a trigger that never exhausts
// its repeats.
const RepeatIndefinitely = -1

// yearToGiveUpSchedulingAt stops fire time searches that a calendar keeps
// pushing forward.
const yearToGiveUpSchedulingAt = 2299

// MisfireInstruction selects what a trigger does when it missed a fire time
// by more than the store's misfire threshold. Values above zero are
// interpreted by each trigger variant.
type MisfireInstruction int

const (
	// MisfireIgnorePolicy fires every missed fire time as soon as possible
	// and leaves the schedule untouched.
	MisfireIgnorePolicy MisfireInstruction = -1
	// MisfireSmartPolicy lets the trigger variant pick its own default.
	MisfireSmartPolicy MisfireInstruction = 0
)

// Misfire instructions of the Cron, CalendarInterval and DailyTimeInterval
// triggers. The smart policy resolves to MisfireFireOnceNow.
const (
	MisfireFireOnceNow MisfireInstruction = 1
	MisfireDoNothing   MisfireInstruction = 2
)

// Misfire instructions of the Simple trigger. The smart policy resolves to
// SimpleMisfireFireNow for a trigger that fires once, to
// SimpleMisfireRescheduleNextWithRemainingCount for a trigger that repeats
// indefinitely, and to SimpleMisfireRescheduleNowWithExistingRepeatCount
// otherwise.
const (
	SimpleMisfireFireNow                               MisfireInstruction = 1
	SimpleMisfireRescheduleNowWithExistingRepeatCount  MisfireInstruction = 2
	SimpleMisfireRescheduleNowWithRemainingRepeatCount MisfireInstruction = 3
	SimpleMisfireRescheduleNextWithRemainingCount      MisfireInstruction = 4
	SimpleMisfireRescheduleNextWithExistingCount       MisfireInstruction = 5
)

// CompletedExecutionInstruction tells the store what to do with a trigger
// once its job finished executing.
type CompletedExecutionInstruction int

const (
	InstructionNoop CompletedExecutionInstruction = iota
	InstructionReExecuteJob
	InstructionSetTriggerComplete
	InstructionDeleteTrigger
	InstructionSetAllJobTriggersComplete
	InstructionSetTriggerError
	InstructionSetAllJobTriggersError
)

func (i CompletedExecutionInstruction) String() string {
	switch i {
	case InstructionNoop:
		return "NOOP"
	case InstructionReExecuteJob:
		return "RE_EXECUTE_JOB"
	case InstructionSetTriggerComplete:
		return "SET_TRIGGER_COMPLETE"
	case InstructionDeleteTrigger:
		return "DELETE_TRIGGER"
	case InstructionSetAllJobTriggersComplete:
		return "SET_ALL_JOB_TRIGGERS_COMPLETE"
	case InstructionSetTriggerError:
		return "SET_TRIGGER_ERROR"
	case InstructionSetAllJobTriggersError:
		return "SET_ALL_JOB_TRIGGERS_ERROR"
	default:
		return "UNKNOWN"
	}
}

// TriggerState is the externally visible state of a stored trigger.
type TriggerState int

const (
	TriggerStateNone TriggerState = iota
	TriggerStateNormal
	TriggerStatePaused
	TriggerStateComplete
	TriggerStateError
	TriggerStateBlocked
)

func (s TriggerState) String() string {
	switch s {
	case TriggerStateNone:
		return "NONE"
	case TriggerStateNormal:
		return "NORMAL"
	case TriggerStatePaused:
		return "PAUSED"
	case TriggerStateComplete:
		return "COMPLETE"
	case TriggerStateError:
		return "ERROR"
	case TriggerStateBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Trigger is the read side of a trigger. The zero time stands for "none"
// wherever a trigger returns an instant.
type Trigger interface {
	Key() TriggerKey
	JobKey() JobKey
	Description() string
	CalendarName() string
	JobDataMap() JobDataMap
	Priority() int
	StartTime() time.Time
	EndTime() time.Time
	NextFireTime() time.Time
	PreviousFireTime() time.Time
	MisfireInstruction() MisfireInstruction
	FireInstanceID() string
	TimesTriggered() int

	// FireTimeAfter returns the next schedule-consistent instant strictly
	// after the given one, ignoring calendars.
	FireTimeAfter(after time.Time) time.Time

	// FinalFireTime returns the last instant the trigger will fire at, or
	// the zero time when the schedule has no computable end.
	FinalFireTime() time.Time

	// MayFireAgain reports whether NextFireTime is set.
	MayFireAgain() bool

	Validate() error

	// Clone returns a deep copy that can be mutated independently.
	Clone() OperableTrigger
}

// OperableTrigger is the mutating side of a trigger used by the store and
// the scheduler. A single OperableTrigger must not be mutated concurrently.
type OperableTrigger interface {
	Trigger

	// ComputeFirstFireTime sets NextFireTime to the first fire time at or
	// after the start time that cal includes, and returns it.
	ComputeFirstFireTime(cal Calendar) time.Time

	// Triggered records a firing: the previous fire time becomes the old
	// next fire time and the next fire time moves to the following instant
	// cal includes.
	Triggered(cal Calendar)

	// UpdateAfterMisfire applies the misfire instruction as of now.
	UpdateAfterMisfire(cal Calendar, now time.Time)

	// UpdateWithNewCalendar recomputes the next fire time after the
	// calendar changed, skipping fire times more than misfireThreshold
	// before now.
	UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration, now time.Time)

	// ExecutionComplete derives the completion instruction from the error
	// a job execution returned.
	ExecutionComplete(err error) CompletedExecutionInstruction

	SetKey(key TriggerKey)
	SetJobKey(key JobKey)
	SetDescription(description string)
	SetCalendarName(name string)
	SetJobDataMap(data JobDataMap)
	SetPriority(priority int)
	SetStartTime(t time.Time)
	SetEndTime(t time.Time)
	SetNextFireTime(t time.Time)
	SetPreviousFireTime(t time.Time)
	SetMisfireInstruction(instr MisfireInstruction)
	SetFireInstanceID(id string)
}

// triggerBase holds the state shared by all trigger variants.
type triggerBase struct {
	key                TriggerKey
	jobKey             JobKey
	description        string
	calendarName       string
	jobData            JobDataMap
	priority           int
	startTime          time.Time
	endTime            time.Time
	nextFireTime       time.Time
	previousFireTime   time.Time
	misfireInstruction MisfireInstruction
	fireInstanceID     string
	timesTriggered     int
}

func newTriggerBase() triggerBase {
	return triggerBase{priority: DefaultPriority}
}

func (b *triggerBase) Key() TriggerKey                        { return b.key }
func (b *triggerBase) JobKey() JobKey                         { return b.jobKey }
func (b *triggerBase) Description() string                    { return b.description }
func (b *triggerBase) CalendarName() string                   { return b.calendarName }
func (b *triggerBase) JobDataMap() JobDataMap                 { return b.jobData.Clone() }
func (b *triggerBase) Priority() int                          { return b.priority }
func (b *triggerBase) StartTime() time.Time                   { return b.startTime }
func (b *triggerBase) EndTime() time.Time                     { return b.endTime }
func (b *triggerBase) NextFireTime() time.Time                { return b.nextFireTime }
func (b *triggerBase) PreviousFireTime() time.Time            { return b.previousFireTime }
func (b *triggerBase) MisfireInstruction() MisfireInstruction { return b.misfireInstruction }
func (b *triggerBase) FireInstanceID() string                 { return b.fireInstanceID }
func (b *triggerBase) TimesTriggered() int                    { return b.timesTriggered }
func (b *triggerBase) MayFireAgain() bool                     { return !b.nextFireTime.IsZero() }

func (b *triggerBase) SetKey(key TriggerKey)                          { b.key = key }
func (b *triggerBase) SetJobKey(key JobKey)                           { b.jobKey = key }
func (b *triggerBase) SetDescription(description string)              { b.description = description }
func (b *triggerBase) SetCalendarName(name string)                    { b.calendarName = name }
func (b *triggerBase) SetJobDataMap(data JobDataMap)                  { b.jobData = data.Clone() }
func (b *triggerBase) SetPriority(priority int)                       { b.priority = priority }
func (b *triggerBase) SetStartTime(t time.Time)                       { b.startTime = t }
func (b *triggerBase) SetEndTime(t time.Time)                         { b.endTime = t }
func (b *triggerBase) SetNextFireTime(t time.Time)                    { b.nextFireTime = t }
func (b *triggerBase) SetPreviousFireTime(t time.Time)                { b.previousFireTime = t }
func (b *triggerBase) SetMisfireInstruction(instr MisfireInstruction) { b.misfireInstruction = instr }
func (b *triggerBase) SetFireInstanceID(id string)                    { b.fireInstanceID = id }

// SetTimesTriggered overrides the firing counter.
func (b *triggerBase) SetTimesTriggered(n int) { b.timesTriggered = n }

func (b *triggerBase) ExecutionComplete(err error) CompletedExecutionInstruction {
	var jee *JobExecutionError
	if errors.As(err, &jee) {
		switch {
		case jee.RefireImmediately:
			return InstructionReExecuteJob
		case jee.UnscheduleFiringTrigger:
			return InstructionSetTriggerComplete
		case jee.UnscheduleAllTriggers:
			return InstructionSetAllJobTriggersComplete
		}
	}
	if !b.MayFireAgain() {
		return InstructionDeleteTrigger
	}
	return InstructionNoop
}

func (b triggerBase) clone() triggerBase {
	b.jobData = b.jobData.Clone()
	return b
}

// validate checks the fields every variant shares; maxMisfire is the
// largest instruction the variant understands.
func (b *triggerBase) validate(maxMisfire MisfireInstruction) error {
	switch {
	case b.key.Name == "":
		return errors.Wrap(ErrInvalidTrigger, "trigger name cannot be empty")
	case b.key.Group == "":
		return errors.Wrap(ErrInvalidTrigger, "trigger group cannot be empty")
	case b.jobKey.Name == "" || b.jobKey.Group == "":
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s is not associated with a job", b.key)
	case b.startTime.IsZero():
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s has no start time", b.key)
	case !b.endTime.IsZero() && b.endTime.Before(b.startTime):
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: end time cannot be before start time", b.key)
	case b.misfireInstruction < MisfireIgnorePolicy || b.misfireInstruction > maxMisfire:
		return errors.Wrapf(ErrInvalidTrigger, "trigger %s: invalid misfire instruction %d", b.key, b.misfireInstruction)
	}
	return nil
}

// skipExcluded moves t forward through after until cal includes it.
// ceilSecond rounds t up to a whole second.
func ceilSecond(t time.Time) time.Time {
	if s := t.Truncate(time.Second); s.Before(t) {
		return s.Add(time.Second)
	}
	return t
}

func skipExcluded(t time.Time, cal Calendar, after func(time.Time) time.Time) time.Time {
	for !t.IsZero() && cal != nil && !cal.IsTimeIncluded(t) {
		t = after(t)
		if t.Year() > yearToGiveUpSchedulingAt {
			return time.Time{}
		}
	}
	return t
}

func (b *triggerBase) triggered(cal Calendar, after func(time.Time) time.Time) {
	b.timesTriggered++
	b.previousFireTime = b.nextFireTime
	if b.nextFireTime.IsZero() {
		return
	}
	b.nextFireTime = skipExcluded(after(b.nextFireTime), cal, after)
}

func (b *triggerBase) computeFirstFireTime(first time.Time, cal Calendar, after func(time.Time) time.Time) time.Time {
	b.nextFireTime = skipExcluded(first, cal, after)
	return b.nextFireTime
}

// updateAfterMisfire implements the FireOnceNow / DoNothing pair shared by
// the cron and interval triggers.
func (b *triggerBase) updateAfterMisfire(cal Calendar, now time.Time, after func(time.Time) time.Time) {
	switch b.misfireInstruction {
	case MisfireIgnorePolicy:
	case MisfireDoNothing:
		b.nextFireTime = skipExcluded(after(now), cal, after)
	default:
		b.nextFireTime = now
	}
}

func (b *triggerBase) updateWithNewCalendar(cal Calendar, threshold time.Duration, now time.Time, after func(time.Time) time.Time) {
	from := b.previousFireTime
	if from.IsZero() {
		from = now
	}
	next := after(from)
	if next.IsZero() || cal == nil {
		b.nextFireTime = next
		return
	}
	for !next.IsZero() && !cal.IsTimeIncluded(next) {
		next = after(next)
		if next.IsZero() {
			break
		}
		if next.Year() > yearToGiveUpSchedulingAt {
			next = time.Time{}
			break
		}
		if next.Before(now) && now.Sub(next) >= threshold {
			next = after(next)
		}
	}
	b.nextFireTime = next
}
