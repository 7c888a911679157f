package quartz

import (
	"context"
	"time"
)

// Job is the behavior a JobDetail refers to by its job type. A Scheduler
// looks jobs up in its registry and calls Execute once per firing.
//
// Returning a *JobExecutionError steers what happens to the firing trigger;
// any other error is logged and the trigger proceeds normally.
type Job interface {
	Execute(ctx context.Context, jc *JobExecutionContext) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context, jc *JobExecutionContext) error

// Execute calls f(ctx, jc).
func (f JobFunc) Execute(ctx context.Context, jc *JobExecutionContext) error { return f(ctx, jc) }

// JobExecutionContext describes one firing to the executing Job.
type JobExecutionContext struct {
	JobDetail *JobDetail
	Trigger   Trigger
	Calendar  Calendar

	FireTime          time.Time
	ScheduledFireTime time.Time
	PreviousFireTime  time.Time
	NextFireTime      time.Time
	FireInstanceID    string

	// RefireCount is the number of times this firing was re-executed after
	// the job asked for it.
	RefireCount int

	// Result is free for the job to set.
	Result any

	jobData JobDataMap
}

func newJobExecutionContext(b *TriggerFiredBundle, refireCount int) *JobExecutionContext {
	return &JobExecutionContext{
		JobDetail:         b.Job,
		Trigger:           b.Trigger,
		Calendar:          b.Calendar,
		FireTime:          b.FireTime,
		ScheduledFireTime: b.ScheduledFireTime,
		PreviousFireTime:  b.PreviousFireTime,
		NextFireTime:      b.NextFireTime,
		FireInstanceID:    b.Trigger.FireInstanceID(),
		RefireCount:       refireCount,
		jobData:           b.Job.JobDataMap(),
	}
}

// JobData returns the job's own data. Changes are written back to the store
// after the execution when the job persists its data.
func (jc *JobExecutionContext) JobData() *JobDataMap { return &jc.jobData }

// MergedJobData returns the job's data overlaid with the trigger's.
func (jc *JobExecutionContext) MergedJobData() JobDataMap {
	return jc.jobData.Merge(jc.Trigger.JobDataMap())
}
