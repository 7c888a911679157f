package quartz

import (
	"github.com/cockroachdb/errors"
)

// JobDetail describes a unit of work. The behavior it runs is identified by
// JobType, an opaque handle the scheduler resolves through its job registry.
//
// A JobDetail is immutable once built; the store and its callers exchange
// copies so that neither side can corrupt the other's state.
type JobDetail struct {
	key                  JobKey
	description          string
	jobType              string
	jobData              JobDataMap
	durable              bool
	requestsRecovery     bool
	disallowConcurrent   bool
	persistDataAfterExec bool
}

// Key returns the job's identity.
func (j *JobDetail) Key() JobKey { return j.key }

// Description returns the optional description.
func (j *JobDetail) Description() string { return j.description }

// JobType returns the handle of the behavior the job runs.
func (j *JobDetail) JobType() string { return j.jobType }

// JobDataMap returns a copy of the job data.
func (j *JobDetail) JobDataMap() JobDataMap { return j.jobData.Clone() }

// IsDurable reports whether the job is kept when it has no triggers left.
func (j *JobDetail) IsDurable() bool { return j.durable }

// RequestsRecovery reports whether the job should be re-run after a crash
// interrupted it.
func (j *JobDetail) RequestsRecovery() bool { return j.requestsRecovery }

// IsConcurrentExecutionDisallowed reports whether at most one instance of
// the job may execute at a time.
func (j *JobDetail) IsConcurrentExecutionDisallowed() bool { return j.disallowConcurrent }

// IsPersistJobDataAfterExecution reports whether the job data modified by an
// execution is written back to the store.
func (j *JobDetail) IsPersistJobDataAfterExecution() bool { return j.persistDataAfterExec }

// Clone returns a deep copy.
func (j *JobDetail) Clone() *JobDetail {
	c := *j
	c.jobData = j.jobData.Clone()
	return &c
}

// WithJobData returns a copy of the job carrying data instead of its own.
func (j *JobDetail) WithJobData(data JobDataMap) *JobDetail {
	c := j.Clone()
	c.jobData = data.Clone()
	return c
}

// Validate checks the invariants a stored job must satisfy.
func (j *JobDetail) Validate() error {
	if j.key.Name == "" {
		return errors.Wrap(ErrInvalidJob, "job name cannot be empty")
	}
	if j.key.Group == "" {
		return errors.Wrap(ErrInvalidJob, "job group cannot be empty")
	}
	if j.jobType == "" {
		return errors.Wrapf(ErrInvalidJob, "job %s has no job type", j.key)
	}
	return nil
}

// JobBuilder builds JobDetail values.
//
//	job, err := quartz.NewJob("report").
//	    WithIdentity("nightly", "reports").
//	    DisallowConcurrentExecution().
//	    UsingJobData("recipient", "ops@example.com").
//	    Build()
type JobBuilder struct {
	detail JobDetail
}

// NewJob starts a builder for a job running the given job type.
func NewJob(jobType string) *JobBuilder {
	return &JobBuilder{detail: JobDetail{jobType: jobType}}
}

// WithIdentity sets the job key; an empty group selects DefaultGroup.
func (b *JobBuilder) WithIdentity(name, group string) *JobBuilder {
	b.detail.key = NewJobKey(name, group)
	return b
}

// WithKey sets the job key.
func (b *JobBuilder) WithKey(key JobKey) *JobBuilder {
	b.detail.key = key
	return b
}

// WithDescription sets the description.
func (b *JobBuilder) WithDescription(description string) *JobBuilder {
	b.detail.description = description
	return b
}

// StoreDurably keeps the job stored after its last trigger is removed.
func (b *JobBuilder) StoreDurably() *JobBuilder {
	b.detail.durable = true
	return b
}

// RequestRecovery marks the job for re-execution after a crash.
func (b *JobBuilder) RequestRecovery() *JobBuilder {
	b.detail.requestsRecovery = true
	return b
}

// DisallowConcurrentExecution blocks the job's other triggers while one
// instance is executing.
func (b *JobBuilder) DisallowConcurrentExecution() *JobBuilder {
	b.detail.disallowConcurrent = true
	return b
}

// PersistJobDataAfterExecution writes modified job data back after each run.
func (b *JobBuilder) PersistJobDataAfterExecution() *JobBuilder {
	b.detail.persistDataAfterExec = true
	return b
}

// UsingJobData adds one entry to the job data.
func (b *JobBuilder) UsingJobData(key string, value any) *JobBuilder {
	b.detail.jobData.Put(key, value)
	return b
}

// SetJobData replaces the job data.
func (b *JobBuilder) SetJobData(data JobDataMap) *JobBuilder {
	b.detail.jobData = data.Clone()
	return b
}

// Build validates and returns the job. A job built without identity gets a
// generated name in DefaultGroup.
func (b *JobBuilder) Build() (*JobDetail, error) {
	d := b.detail.Clone()
	if d.key.IsZero() {
		d.key = NewJobKey(generateName(), DefaultGroup)
	}
	d.jobData.ClearDirtyFlag()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on error.
func (b *JobBuilder) MustBuild() *JobDetail {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
