package quartz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newTestScheduler(t *testing.T, storeOpts []StoreOption, opts ...SchedulerOption) (*Scheduler, *MemoryStore, *FakeClock) {
	t.Helper()
	store, clock := newTestStore(t, storeOpts...)
	opts = append([]SchedulerOption{WithClock(clock), WithLogger(DiscardLogger)}, opts...)
	s := NewScheduler(store, opts...)
	t.Cleanup(func() {
		select {
		case <-s.Stop().Done():
		case <-time.After(waitTimeout):
			t.Error("jobs did not return after Stop")
		}
	})
	return s, store, clock
}

// recordJob registers jobType on s and returns the channel receiving every
// execution context.
func recordJob(s *Scheduler, jobType string) <-chan *JobExecutionContext {
	ch := make(chan *JobExecutionContext, 16)
	s.RegisterJob(jobType, JobFunc(func(_ context.Context, jc *JobExecutionContext) error {
		ch <- jc
		return nil
	}))
	return ch
}

func receive(t *testing.T, ch <-chan *JobExecutionContext) *JobExecutionContext {
	t.Helper()
	select {
	case jc := <-ch:
		return jc
	case <-time.After(waitTimeout):
		t.Fatal("job was not executed")
		return nil
	}
}

func assertNotExecuted(t *testing.T, ch <-chan *JobExecutionContext) {
	t.Helper()
	select {
	case jc := <-ch:
		t.Fatalf("unexpected execution at %v", jc.ScheduledFireTime)
	default:
	}
}

// advanceUntilExecuted moves the clock forward by step until the job runs.
// The loop may re-arm its timer at any point, so a single Advance can race.
func advanceUntilExecuted(t *testing.T, clock *FakeClock, ch <-chan *JobExecutionContext, step time.Duration) *JobExecutionContext {
	t.Helper()
	var jc *JobExecutionContext
	require.Eventually(t, func() bool {
		select {
		case jc = <-ch:
			return true
		default:
			clock.Advance(step)
			return false
		}
	}, waitTimeout, time.Millisecond)
	return jc
}

func TestSchedulerFiresDueTrigger(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil)
	executed := recordJob(s, "noop")

	job := NewJob("noop").WithIdentity("j", "g").UsingJobData("from", "job").UsingJobData("shared", "job").MustBuild()
	trigger := NewTrigger().WithIdentity("t", "g").ForJobDetail(job).StartAt(t0).
		UsingJobData("shared", "trigger").MustBuild()
	first, err := s.ScheduleJob(job, trigger)
	require.NoError(t, err)
	assert.Equal(t, t0, first)
	assert.True(t, trigger.NextFireTime().IsZero(), "the caller's trigger is not modified")

	s.Start()
	assert.True(t, s.IsRunning())

	jc := receive(t, executed)
	assert.Equal(t, job.Key(), jc.JobDetail.Key())
	assert.Equal(t, trigger.Key(), jc.Trigger.Key())
	assert.Equal(t, t0, jc.ScheduledFireTime)
	assert.Equal(t, t0, jc.FireTime)
	assert.True(t, jc.NextFireTime.IsZero())
	assert.NotEmpty(t, jc.FireInstanceID)
	assert.Zero(t, jc.RefireCount)

	merged := jc.MergedJobData()
	assert.Equal(t, "job", merged.GetString("from"))
	assert.Equal(t, "trigger", merged.GetString("shared"))

	assert.Eventually(t, func() bool {
		return store.NumberOfTriggers() == 0 && !store.CheckJobExists(job.Key())
	}, waitTimeout, time.Millisecond, "the finished trigger and its orphaned job are removed")
}

func TestSchedulerWaitsForFireTime(t *testing.T) {
	s, _, clock := newTestScheduler(t, nil)
	executed := recordJob(s, "noop")

	job := NewJob("noop").WithIdentity("j", "g").MustBuild()
	_, err := s.ScheduleJob(job, once("t", job.Key(), t0.Add(10*time.Second)))
	require.NoError(t, err)

	s.Start()
	clock.BlockUntil(1)
	assertNotExecuted(t, executed)

	jc := advanceUntilExecuted(t, clock, executed, time.Second)
	assert.Equal(t, t0.Add(10*time.Second), jc.ScheduledFireTime)
}

func TestSchedulerRepeatingTrigger(t *testing.T) {
	s, store, clock := newTestScheduler(t, []StoreOption{WithMisfireThreshold(time.Hour)})
	executed := recordJob(s, "noop")

	job := NewJob("noop").WithIdentity("j", "g").StoreDurably().MustBuild()
	require.NoError(t, s.AddJob(job, false))
	_, err := s.ScheduleTrigger(everyMinute("t", job.Key(), t0))
	require.NoError(t, err)
	s.Start()

	var scheduled []time.Time
	scheduled = append(scheduled, receive(t, executed).ScheduledFireTime)
	for range 2 {
		jc := advanceUntilExecuted(t, clock, executed, time.Second)
		scheduled = append(scheduled, jc.ScheduledFireTime)
	}
	assert.Equal(t, []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute)}, scheduled)
	assert.Equal(t, TriggerStateNormal, store.TriggerState(NewTriggerKey("t", "g")))
}

func TestSchedulerWakesOnSchedulingChange(t *testing.T) {
	s, _, clock := newTestScheduler(t, nil)
	executed := recordJob(s, "noop")
	s.Start()

	// idle with nothing to fire
	clock.BlockUntil(1)

	job := NewJob("noop").WithIdentity("j", "g").MustBuild()
	_, err := s.ScheduleJob(job, once("t", job.Key(), t0))
	require.NoError(t, err)

	jc := receive(t, executed)
	assert.Equal(t, t0, jc.ScheduledFireTime)
	assert.Equal(t, t0, clock.Now(), "no clock movement was needed")
}

func TestSchedulerRefireImmediately(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	counts := make(chan int, 4)
	s.RegisterJob("flaky", JobFunc(func(_ context.Context, jc *JobExecutionContext) error {
		counts <- jc.RefireCount
		if jc.RefireCount == 0 {
			return &JobExecutionError{RefireImmediately: true}
		}
		return nil
	}))

	job := NewJob("flaky").WithIdentity("j", "g").MustBuild()
	_, err := s.ScheduleJob(job, once("t", job.Key(), t0))
	require.NoError(t, err)
	s.Start()

	for want := range 2 {
		select {
		case got := <-counts:
			assert.Equal(t, want, got)
		case <-time.After(waitTimeout):
			t.Fatalf("execution %d did not happen", want)
		}
	}
}

func TestSchedulerPersistsJobData(t *testing.T) {
	s, store, clock := newTestScheduler(t, []StoreOption{WithMisfireThreshold(time.Hour)})
	done := make(chan *JobExecutionContext, 4)
	s.RegisterJob("counter", JobFunc(func(_ context.Context, jc *JobExecutionContext) error {
		n, _ := jc.JobData().GetInt("count")
		jc.JobData().Put("count", n+1)
		done <- jc
		return nil
	}))

	job := NewJob("counter").WithIdentity("j", "g").StoreDurably().
		PersistJobDataAfterExecution().DisallowConcurrentExecution().
		UsingJobData("count", 0).MustBuild()
	_, err := s.ScheduleJob(job, everyMinute("t", job.Key(), t0))
	require.NoError(t, err)
	s.Start()

	receive(t, done)
	// the next firing is blocked until the first one completed
	jc := advanceUntilExecuted(t, clock, done, time.Second)
	n, _ := jc.JobData().GetInt("count")
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool {
		n, _ := store.RetrieveJob(job.Key()).JobDataMap().GetInt("count")
		return n == 2
	}, waitTimeout, time.Millisecond)
}

func TestSchedulerChainRecoversPanics(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil, WithChain(Recover(DiscardLogger)))
	s.RegisterJob("panic", JobFunc(func(context.Context, *JobExecutionContext) error {
		panic("kaboom")
	}))
	executed := recordJob(s, "noop")

	bad := NewJob("panic").WithIdentity("bad", "g").MustBuild()
	_, err := s.ScheduleJob(bad, once("bad", bad.Key(), t0))
	require.NoError(t, err)
	s.Start()

	good := NewJob("noop").WithIdentity("good", "g").MustBuild()
	_, err = s.ScheduleJob(good, once("good", good.Key(), t0))
	require.NoError(t, err)

	receive(t, executed)
	assert.Eventually(t, func() bool { return store.NumberOfTriggers() == 0 },
		waitTimeout, time.Millisecond)
}

func TestSchedulerUnknownJobType(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil)
	job := NewJob("unregistered").WithIdentity("j", "g").StoreDurably().MustBuild()
	_, err := s.ScheduleJob(job, everyMinute("t", job.Key(), t0))
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool {
		return store.TriggerState(NewTriggerKey("t", "g")) == TriggerStateError
	}, waitTimeout, time.Millisecond)
}

func TestSchedulerScheduleJobErrors(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil)
	job := NewJob("noop").WithIdentity("j", "g").MustBuild()

	never, err := NewTrigger().WithIdentity("never", "g").ForJob(job.Key()).StartAt(t0).
		WithSchedule(CronSchedule("0 0 0 1 1 ? 2020")).Build()
	require.NoError(t, err)
	withCalendar := once("cal", job.Key(), t0)
	withCalendar.SetCalendarName("holidays")

	tests := []struct {
		name    string
		job     *JobDetail
		trigger OperableTrigger
		target  error
	}{
		{"nil job", nil, once("t", job.Key(), t0), ErrInvalidJob},
		{"nil trigger", job, nil, ErrInvalidTrigger},
		{"other job", job, once("t", NewJobKey("other", "g"), t0), ErrTriggerJobMismatch},
		{"never fires", job, never, ErrInvalidTrigger},
		{"unknown calendar", job, withCalendar, ErrInvalidCalendar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ScheduleJob(tt.job, tt.trigger)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Zero(t, store.NumberOfJobs())
	assert.Zero(t, store.NumberOfTriggers())

	// a trigger without a job key is bound to the scheduled job
	unbound := NewSimpleTrigger(NewTriggerKey("t", "g"), JobKey{}, t0.Add(time.Hour), 0, 0)
	first, err := s.ScheduleJob(job, unbound)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), first)
	assert.Equal(t, job.Key(), store.RetrieveTrigger(NewTriggerKey("t", "g")).JobKey())

	_, err = s.ScheduleJob(job, once("t2", job.Key(), t0))
	assert.ErrorIs(t, err, ErrObjectAlreadyExists)
}

func TestSchedulerAddJob(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil)

	err := s.AddJob(NewJob("noop").WithIdentity("j", "g").MustBuild(), false)
	assert.ErrorIs(t, err, ErrInvalidJob)

	durable := NewJob("noop").WithIdentity("j", "g").StoreDurably().MustBuild()
	require.NoError(t, s.AddJob(durable, false))
	assert.ErrorIs(t, s.AddJob(durable, false), ErrObjectAlreadyExists)
	require.NoError(t, s.AddJob(durable, true))
	assert.True(t, store.CheckJobExists(durable.Key()))

	_, err = s.ScheduleTrigger(everyMinute("t", durable.Key(), t0))
	require.NoError(t, err)
	assert.True(t, s.Unschedule(NewTriggerKey("t", "g")))
	assert.False(t, s.Unschedule(NewTriggerKey("t", "g")))
	assert.True(t, store.CheckJobExists(durable.Key()), "durable jobs outlive their triggers")

	assert.True(t, s.DeleteJob(durable.Key()))
	assert.False(t, s.DeleteJob(durable.Key()))
}

func TestSchedulerPauseJob(t *testing.T) {
	s, store, clock := newTestScheduler(t, nil)
	executed := recordJob(s, "noop")
	job := NewJob("noop").WithIdentity("j", "g").MustBuild()
	key := NewTriggerKey("t", "g")
	_, err := s.ScheduleJob(job, everyMinute("t", job.Key(), t0.Add(time.Minute)))
	require.NoError(t, err)

	s.PauseJob(job.Key())
	assert.Equal(t, TriggerStatePaused, store.TriggerState(key))
	s.Start()
	clock.BlockUntil(1)
	clock.Advance(2 * time.Minute)
	assertNotExecuted(t, executed)

	s.ResumeJob(job.Key())
	assert.Equal(t, TriggerStateNormal, store.TriggerState(key))
	// the firings missed while paused are skipped
	jc := advanceUntilExecuted(t, clock, executed, time.Second)
	assert.False(t, jc.ScheduledFireTime.Before(t0.Add(2*time.Minute)))
}

func TestSchedulerTriggerJob(t *testing.T) {
	s, store, _ := newTestScheduler(t, nil)
	executed := recordJob(s, "noop")

	err := s.TriggerJob(NewJobKey("missing", "g"), JobDataMap{})
	assert.ErrorIs(t, err, ErrJobNotFound)

	job := NewJob("noop").WithIdentity("j", "g").StoreDurably().UsingJobData("a", 1).MustBuild()
	require.NoError(t, s.AddJob(job, false))
	require.NoError(t, s.TriggerJob(job.Key(), NewJobDataMap(map[string]any{"b": 2})))
	s.Start()

	jc := receive(t, executed)
	assert.True(t, strings.HasPrefix(jc.Trigger.Key().Name, "MT_"))
	assert.Equal(t, t0, jc.ScheduledFireTime)
	merged := jc.MergedJobData()
	a, _ := merged.GetInt("a")
	b, _ := merged.GetInt("b")
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	assert.Eventually(t, func() bool { return store.NumberOfTriggers() == 0 },
		waitTimeout, time.Millisecond)
	assert.True(t, store.CheckJobExists(job.Key()))
}

func TestSchedulerStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)
	started := make(chan struct{})
	jobErr := make(chan error, 1)
	s.RegisterJob("wait", JobFunc(func(ctx context.Context, _ *JobExecutionContext) error {
		close(started)
		<-ctx.Done()
		jobErr <- ctx.Err()
		return ctx.Err()
	}))

	job := NewJob("wait").WithIdentity("j", "g").MustBuild()
	_, err := s.ScheduleJob(job, once("t", job.Key(), t0))
	require.NoError(t, err)
	s.Start()
	s.Start()

	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("job did not start")
	}

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not wait for the running job")
	}
	assert.ErrorIs(t, <-jobErr, context.Canceled)
	assert.False(t, s.IsRunning())

	s.Start()
	assert.False(t, s.IsRunning(), "a stopped scheduler stays stopped")
	_, err = s.ScheduleJob(job, once("t2", job.Key(), t0))
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	assert.ErrorIs(t, s.AddJob(job, true), ErrSchedulerStopped)
	assert.ErrorIs(t, s.TriggerJob(job.Key(), JobDataMap{}), ErrSchedulerStopped)
}

func TestNewSchedulerDefaultStore(t *testing.T) {
	s := NewScheduler(nil, WithLogger(DiscardLogger))
	defer s.Stop()
	_, ok := s.Store().(*MemoryStore)
	assert.True(t, ok)
	assert.False(t, s.IsRunning())
}
