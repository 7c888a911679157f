package quartz

import (
	"slices"
	"sync"
	"time"
)

// Clock is the time source of a Scheduler and a MemoryStore. Tests swap in a
// FakeClock to make misfire detection and wake-ups deterministic.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the scheduler loop needs.
type Timer interface {
	// C returns the channel on which the timer fires.
	C() <-chan time.Time
	// Stop prevents the Timer from firing. It reports whether the call
	// stopped an active timer.
	Stop() bool
	// Reset changes the timer to expire after d. It reports whether the
	// timer had been active.
	Reset(d time.Duration) bool
}

// RealClock implements Clock with the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.timer.C }
func (r *realTimer) Stop() bool                 { return r.timer.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.timer.Reset(d) }

// FakeClock is a manually advanced Clock. Timers fire when Advance or Set
// moves the clock to or past their deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	waiters []chan struct{}
}

// NewFakeClock returns a FakeClock reading t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer returns a timer firing once the clock reaches now+d. A
// non-positive d fires immediately.
func (f *FakeClock) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, ch: make(chan time.Time, 1)}
	f.arm(t, d)
	return t
}

// Set moves the clock to t and fires every timer whose deadline passed.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
	f.fireExpired()
}

// Advance moves the clock forward by d and fires every timer whose deadline
// passed.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.fireExpired()
}

// BlockUntil blocks until at least n timers are armed on the clock.
func (f *FakeClock) BlockUntil(n int) {
	for {
		f.mu.Lock()
		if len(f.timers) >= n {
			f.mu.Unlock()
			return
		}
		w := make(chan struct{})
		f.waiters = append(f.waiters, w)
		f.mu.Unlock()
		<-w
	}
}

// TimerCount returns the number of armed timers.
func (f *FakeClock) TimerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// arm schedules t for now+d. Must be called with f.mu held.
func (f *FakeClock) arm(t *fakeTimer, d time.Duration) {
	t.deadline = f.now.Add(d)
	t.stopped = false
	if d <= 0 {
		t.send(f.now)
		return
	}
	f.timers = append(f.timers, t)
	for _, w := range f.waiters {
		close(w)
	}
	f.waiters = nil
}

// fireExpired must be called with f.mu held.
func (f *FakeClock) fireExpired() {
	f.timers = slices.DeleteFunc(f.timers, func(t *fakeTimer) bool {
		if t.deadline.After(f.now) {
			return false
		}
		t.send(f.now)
		return true
	})
}

// disarm must be called with f.mu held.
func (f *FakeClock) disarm(t *fakeTimer) bool {
	i := slices.Index(f.timers, t)
	if i < 0 {
		return false
	}
	f.timers = slices.Delete(f.timers, i, i+1)
	return true
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTimer) send(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return t.clock.disarm(t)
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && t.clock.disarm(t)
	t.clock.arm(t, d)
	return active
}
