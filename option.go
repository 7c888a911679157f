package quartz

import (
	"time"
)

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithMisfireThreshold sets how late a trigger may be acquired before its
// misfire instruction is applied. Negative values are treated as zero.
func WithMisfireThreshold(d time.Duration) StoreOption {
	return func(s *MemoryStore) {
		s.misfireThreshold = max(d, 0)
	}
}

// WithStoreClock uses the provided Clock to decide what is misfired.
func WithStoreClock(clock Clock) StoreOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// WithStoreLogger uses the provided logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithSignaler sends misfire, finalization and scheduling change
// notifications to signaler, in addition to the scheduler driving the store.
//
// Example:
//
//	store := quartz.NewMemoryStore(quartz.WithSignaler(&quartz.SignalerHooks{
//	    OnFinalized: func(t quartz.Trigger) { log.Println("done:", t.Key()) },
//	}))
func WithSignaler(signaler SchedulerSignaler) StoreOption {
	return func(s *MemoryStore) {
		if signaler != nil {
			s.userSignaler = signaler
		}
	}
}

// WithInstanceID sets the prefix of fire instance ids. By default a UUIDv7
// is generated per store.
func WithInstanceID(id string) StoreOption {
	return func(s *MemoryStore) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger uses the provided logger.
func WithLogger(logger Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock uses the provided Clock implementation instead of the default RealClock.
// This is useful for testing time-dependent behavior without waiting.
//
// Example usage:
//
//	clock := quartz.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
//	store := quartz.NewMemoryStore(quartz.WithStoreClock(clock))
//	s := quartz.NewScheduler(store, quartz.WithClock(clock))
//	s.Start()
//	clock.Advance(time.Hour) // fire everything due within the hour
func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithChain specifies Job wrappers to apply to every executed job.
func WithChain(wrappers ...JobWrapper) SchedulerOption {
	return func(s *Scheduler) {
		s.chain = NewChain(wrappers...)
	}
}

// WithBatchSize sets how many triggers are acquired per loop iteration.
func WithBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchTimeWindow lets a batch include triggers due up to d after the
// loop's look-ahead horizon.
func WithBatchTimeWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.batchTimeWindow = max(d, 0)
	}
}

// WithIdleWaitTime sets how far ahead the loop looks for due triggers and
// how long it sleeps when none are.
func WithIdleWaitTime(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleWaitTime = d
		}
	}
}
