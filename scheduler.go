package quartz

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Defaults of the scheduler loop.
const (
	DefaultBatchSize    = 1
	DefaultIdleWaitTime = 30 * time.Second
)

// Scheduler drives a JobStore: it acquires due triggers, waits for their
// fire time, fires them and runs the referenced jobs in goroutines. It is
// woken early whenever the store signals a scheduling change.
type Scheduler struct {
	store  JobStore
	clock  Clock
	logger Logger
	chain  Chain

	batchSize       int
	batchTimeWindow time.Duration
	idleWaitTime    time.Duration

	jobsMu sync.RWMutex
	jobs   map[string]Job

	wake      chan time.Time
	stop      chan struct{}
	runningMu sync.Mutex
	running   bool
	shutdown  bool
	jobWaiter sync.WaitGroup
	baseCtx   context.Context
	cancelCtx context.CancelFunc
}

// NewScheduler returns a stopped scheduler driving store. A nil store
// selects a new MemoryStore.
func NewScheduler(store JobStore, opts ...SchedulerOption) *Scheduler {
	if store == nil {
		store = NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:        store,
		clock:        RealClock{},
		logger:       DefaultLogger,
		chain:        NewChain(),
		batchSize:    DefaultBatchSize,
		idleWaitTime: DefaultIdleWaitTime,
		jobs:         make(map[string]Job),
		wake:         make(chan time.Time, 1),
		stop:         make(chan struct{}),
		baseCtx:      ctx,
		cancelCtx:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	store.Initialize(s)
	return s
}

// Store returns the store the scheduler drives.
func (s *Scheduler) Store() JobStore { return s.store }

// RegisterJob makes job the behavior of every JobDetail with jobType. The
// job is decorated with the scheduler's chain once, here.
func (s *Scheduler) RegisterJob(jobType string, job Job) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[jobType] = s.chain.Then(job)
}

func (s *Scheduler) lookupJob(jobType string) (Job, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	j, ok := s.jobs[jobType]
	return j, ok
}

// TriggerMisfired logs the misfire.
func (s *Scheduler) TriggerMisfired(trigger Trigger) {
	s.logger.Info("misfire", "trigger", trigger.Key(), "next", trigger.NextFireTime())
}

// TriggerFinalized logs that the trigger will not fire again.
func (s *Scheduler) TriggerFinalized(trigger Trigger) {
	s.logger.Info("finalized", "trigger", trigger.Key())
}

// SchedulingChanged wakes the loop so it re-evaluates what to fire next.
func (s *Scheduler) SchedulingChanged(candidate time.Time) {
	select {
	case s.wake <- candidate:
	default:
		// a wake-up is already pending; make sure it is not ignored
		select {
		case <-s.wake:
		default:
		}
		select {
		case s.wake <- time.Time{}:
		default:
		}
	}
}

func (s *Scheduler) checkShutdown() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.shutdown {
		return ErrSchedulerStopped
	}
	return nil
}

// AddJob stores a job without a trigger. Such jobs must be durable.
func (s *Scheduler) AddJob(job *JobDetail, replace bool) error {
	if err := s.checkShutdown(); err != nil {
		return err
	}
	if job != nil && !job.IsDurable() {
		return errors.Wrapf(ErrInvalidJob, "job %s added without a trigger must be durable", job.Key())
	}
	return s.store.StoreJob(job, replace)
}

// ScheduleJob stores job together with a trigger firing it and returns the
// trigger's first fire time. A trigger without a job key is bound to job.
func (s *Scheduler) ScheduleJob(job *JobDetail, trigger OperableTrigger) (time.Time, error) {
	if err := s.checkShutdown(); err != nil {
		return time.Time{}, err
	}
	if job == nil {
		return time.Time{}, errors.Wrap(ErrInvalidJob, "job cannot be nil")
	}
	if trigger == nil {
		return time.Time{}, errors.Wrap(ErrInvalidTrigger, "trigger cannot be nil")
	}
	trigger = trigger.Clone()
	switch {
	case trigger.JobKey().IsZero():
		trigger.SetJobKey(job.Key())
	case trigger.JobKey() != job.Key():
		return time.Time{}, errors.Wrapf(ErrTriggerJobMismatch, "trigger %s fires %s, not %s", trigger.Key(), trigger.JobKey(), job.Key())
	}
	first, err := s.computeFirstFireTime(trigger)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.StoreJobAndTrigger(job, trigger); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("scheduled", "job", job.Key(), "trigger", trigger.Key(), "next", first)
	return first, nil
}

// ScheduleTrigger stores a trigger for an already stored job and returns its
// first fire time.
func (s *Scheduler) ScheduleTrigger(trigger OperableTrigger) (time.Time, error) {
	if err := s.checkShutdown(); err != nil {
		return time.Time{}, err
	}
	if trigger == nil {
		return time.Time{}, errors.Wrap(ErrInvalidTrigger, "trigger cannot be nil")
	}
	trigger = trigger.Clone()
	first, err := s.computeFirstFireTime(trigger)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.StoreTrigger(trigger, false); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("scheduled", "job", trigger.JobKey(), "trigger", trigger.Key(), "next", first)
	return first, nil
}

func (s *Scheduler) computeFirstFireTime(trigger OperableTrigger) (time.Time, error) {
	if err := trigger.Validate(); err != nil {
		return time.Time{}, err
	}
	var cal Calendar
	if name := trigger.CalendarName(); name != "" {
		if cal = s.store.RetrieveCalendar(name); cal == nil {
			return time.Time{}, errors.Wrapf(ErrInvalidCalendar, "trigger %s references unknown calendar %q", trigger.Key(), name)
		}
	}
	first := trigger.ComputeFirstFireTime(cal)
	if first.IsZero() {
		return time.Time{}, errors.Wrapf(ErrInvalidTrigger, "trigger %s will never fire", trigger.Key())
	}
	return first, nil
}

// Unschedule removes a trigger. It reports whether the trigger existed.
func (s *Scheduler) Unschedule(key TriggerKey) bool {
	return s.store.RemoveTrigger(key)
}

// DeleteJob removes a job and its triggers. It reports whether the job
// existed.
func (s *Scheduler) DeleteJob(key JobKey) bool {
	return s.store.RemoveJob(key)
}

func (s *Scheduler) PauseJob(key JobKey)  { s.store.PauseJob(key) }
func (s *Scheduler) ResumeJob(key JobKey) { s.store.ResumeJob(key) }

// TriggerJob fires a stored job now, with data overlaid on its own.
func (s *Scheduler) TriggerJob(key JobKey, data JobDataMap) error {
	if err := s.checkShutdown(); err != nil {
		return err
	}
	if s.store.RetrieveJob(key) == nil {
		return errors.Wrapf(ErrJobNotFound, "job %s", key)
	}
	trigger, err := NewTrigger().
		WithIdentity("MT_"+generateName(), DefaultGroup).
		ForJob(key).
		StartAt(s.clock.Now()).
		SetJobData(data).
		WithSchedule(SimpleSchedule().WithMisfireHandlingInstructionFireNow()).
		Build()
	if err != nil {
		return err
	}
	_, err = s.ScheduleTrigger(trigger)
	return err
}

// Start the scheduler in its own goroutine, or no-op if already started.
func (s *Scheduler) Start() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running || s.shutdown {
		return
	}
	s.running = true
	go s.run()
}

// IsRunning reports whether the scheduler loop runs.
func (s *Scheduler) IsRunning() bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return s.running
}

// Stop stops the scheduler loop and cancels the context passed to running
// jobs. It returns a context that is done once every running job returned.
// A stopped scheduler cannot be started again.
func (s *Scheduler) Stop() context.Context {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		s.stop <- struct{}{}
		s.running = false
	}
	s.shutdown = true
	s.cancelCtx()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s.jobWaiter.Wait()
		cancel()
	}()
	return ctx
}

func (s *Scheduler) run() {
	s.logger.Info("start")
	for {
		now := s.clock.Now()
		triggers := s.store.AcquireNextTriggers(now.Add(s.idleWaitTime), s.batchSize, s.batchTimeWindow)
		if len(triggers) == 0 {
			if !s.idle(s.idleWaitTime) {
				return
			}
			continue
		}
		s.logger.Info("acquired", "now", now, "count", len(triggers), "next", triggers[0].NextFireTime())

		fire, ok := s.waitFor(triggers[0].NextFireTime())
		if !ok {
			s.release(triggers)
			return
		}
		if !fire {
			s.release(triggers)
			continue
		}

		bundles := s.store.TriggersFired(triggers)
		for i, b := range bundles {
			if b == nil {
				s.logger.Info("skipped", "trigger", triggers[i].Key())
				continue
			}
			s.startJob(b)
		}
	}
}

// idle waits for d, a scheduling change or stop. It returns false on stop.
func (s *Scheduler) idle(d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
	case <-s.wake:
	case <-s.stop:
		s.logger.Info("stop")
		return false
	}
	return true
}

// waitFor sleeps until at. fire is false when a scheduling change brought
// an earlier candidate, ok is false on stop.
func (s *Scheduler) waitFor(at time.Time) (fire, ok bool) {
	d := at.Sub(s.clock.Now())
	if d <= 0 {
		return true, true
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case now := <-timer.C():
			s.logger.Info("wake", "now", now)
			return true, true
		case candidate := <-s.wake:
			if candidate.IsZero() || candidate.Before(at) {
				return false, true
			}
		case <-s.stop:
			s.logger.Info("stop")
			return false, false
		}
	}
}

func (s *Scheduler) release(triggers []OperableTrigger) {
	for _, t := range triggers {
		s.store.ReleaseAcquiredTrigger(t)
	}
}

// startJob executes the firing in a new goroutine and reports its outcome
// to the store.
func (s *Scheduler) startJob(b *TriggerFiredBundle) {
	job, ok := s.lookupJob(b.Job.JobType())
	if !ok {
		err := errors.Wrapf(ErrUnknownJobType, "%q for job %s", b.Job.JobType(), b.Job.Key())
		s.logger.Error(err, "run", "trigger", b.Trigger.Key())
		s.store.TriggeredJobComplete(b.Trigger, b.Job, InstructionSetAllJobTriggersError)
		return
	}
	s.jobWaiter.Add(1)
	go func() {
		defer s.jobWaiter.Done()

		var (
			jc    *JobExecutionContext
			instr CompletedExecutionInstruction
		)
		for refire := 0; ; refire++ {
			jc = newJobExecutionContext(b, refire)
			s.logger.Info("run",
				"job", b.Job.Key(),
				"trigger", b.Trigger.Key(),
				"scheduled", b.ScheduledFireTime,
				"next", b.NextFireTime)
			start := s.clock.Now()
			err := job.Execute(s.baseCtx, jc)
			if err != nil {
				s.logger.Error(err, "job failed", "job", b.Job.Key(), "trigger", b.Trigger.Key(), "duration", s.clock.Now().Sub(start))
			}
			instr = b.Trigger.ExecutionComplete(err)
			if instr != InstructionReExecuteJob || s.baseCtx.Err() != nil {
				break
			}
		}
		if instr == InstructionReExecuteJob {
			instr = InstructionNoop
		}
		s.store.TriggeredJobComplete(b.Trigger, b.Job.WithJobData(*jc.JobData()), instr)
	}()
}
