package quartz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fired(tm Timer) bool {
	select {
	case <-tm.C():
		return true
	default:
		return false
	}
}

func TestFakeClockTimers(t *testing.T) {
	c := NewFakeClock(t0)
	tm := c.NewTimer(time.Minute)
	assert.Equal(t, 1, c.TimerCount())

	c.Advance(59 * time.Second)
	assert.False(t, fired(tm))

	c.Advance(time.Second)
	assert.True(t, fired(tm))
	assert.Equal(t, 0, c.TimerCount())
	assert.Equal(t, t0.Add(time.Minute), c.Now())
}

func TestFakeClockSet(t *testing.T) {
	c := NewFakeClock(t0)
	short := c.NewTimer(time.Second)
	long := c.NewTimer(time.Hour)

	c.Set(t0.Add(time.Minute))
	assert.True(t, fired(short))
	assert.False(t, fired(long))
	assert.Equal(t, 1, c.TimerCount())
}

func TestFakeClockImmediateTimer(t *testing.T) {
	c := NewFakeClock(t0)
	tm := c.NewTimer(0)
	assert.True(t, fired(tm))
	assert.Equal(t, 0, c.TimerCount())
}

func TestFakeTimerStopAndReset(t *testing.T) {
	c := NewFakeClock(t0)
	tm := c.NewTimer(time.Minute)

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Hour)
	assert.False(t, fired(tm))

	assert.False(t, tm.Reset(time.Minute), "a stopped timer was not active")
	assert.True(t, tm.Reset(2*time.Minute))
	c.Advance(time.Minute)
	assert.False(t, fired(tm))
	c.Advance(time.Minute)
	assert.True(t, fired(tm))
}

func TestFakeClockBlockUntil(t *testing.T) {
	c := NewFakeClock(t0)
	done := make(chan struct{})
	go func() {
		c.BlockUntil(2)
		close(done)
	}()

	c.NewTimer(time.Second)
	select {
	case <-done:
		t.Fatal("BlockUntil returned with one timer")
	case <-time.After(20 * time.Millisecond):
	}

	c.NewTimer(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BlockUntil did not return")
	}
}

func TestRealClock(t *testing.T) {
	var c RealClock
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)

	tm := c.NewTimer(time.Millisecond)
	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
	assert.False(t, tm.Stop())
}
