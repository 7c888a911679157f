package quartz

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors returned by the store, the builders and the scheduler.
// Wrapped errors keep these as their cause, so callers test with errors.Is.
var (
	// ErrObjectAlreadyExists is returned when a job, trigger or calendar is
	// stored under a key that is already taken and replacement was not requested.
	ErrObjectAlreadyExists = errors.New("quartz: object already exists")

	// ErrJobNotFound is returned when a trigger references a job that is not stored.
	ErrJobNotFound = errors.New("quartz: referenced job does not exist")

	// ErrCalendarInUse is returned when removing a calendar that triggers still reference.
	ErrCalendarInUse = errors.New("quartz: calendar is referenced by a trigger")

	// ErrTriggerJobMismatch is returned by ReplaceTrigger when the new trigger
	// targets a different job than the trigger it replaces.
	ErrTriggerJobMismatch = errors.New("quartz: new trigger is not related to the same job as the old trigger")

	// ErrInvalidTrigger wraps trigger validation failures.
	ErrInvalidTrigger = errors.New("quartz: invalid trigger")

	// ErrInvalidJob wraps job validation failures.
	ErrInvalidJob = errors.New("quartz: invalid job")

	// ErrInvalidCalendar wraps calendar validation failures.
	ErrInvalidCalendar = errors.New("quartz: invalid calendar")

	// ErrInvalidCronExpression is the cause of every *CronFormatError.
	ErrInvalidCronExpression = errors.New("quartz: invalid cron expression")

	// ErrUnknownJobType is returned by the scheduler when no Job is registered
	// for a JobDetail's job type.
	ErrUnknownJobType = errors.New("quartz: no job registered for job type")

	// ErrSchedulerStopped is returned when scheduling on a stopped scheduler.
	ErrSchedulerStopped = errors.New("quartz: scheduler is stopped")
)

// CronFormatError describes a malformed cron expression. Position is the byte
// offset into Expression where the problem was detected.
type CronFormatError struct {
	Expression string
	Field      string
	Position   int
	Msg        string
}

func (e *CronFormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron expression %q: %s (position %d)", e.Expression, e.Msg, e.Position)
	}
	return fmt.Sprintf("cron expression %q: %s field: %s (position %d)", e.Expression, e.Field, e.Msg, e.Position)
}

// Unwrap makes errors.Is(err, ErrInvalidCronExpression) hold.
func (e *CronFormatError) Unwrap() error { return ErrInvalidCronExpression }

// JobExecutionError is returned by a Job to steer what happens to its
// trigger once the execution finished.
type JobExecutionError struct {
	Err error

	// RefireImmediately asks the scheduler to run the job again right away.
	RefireImmediately bool
	// UnscheduleFiringTrigger marks the firing trigger COMPLETE.
	UnscheduleFiringTrigger bool
	// UnscheduleAllTriggers marks every trigger of the job COMPLETE.
	UnscheduleAllTriggers bool
}

func (e *JobExecutionError) Error() string {
	if e.Err == nil {
		return "job execution failed"
	}
	return "job execution failed: " + e.Err.Error()
}

func (e *JobExecutionError) Unwrap() error { return e.Err }
