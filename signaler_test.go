package quartz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu     sync.Mutex
	events []cloudevents.Event
	block  chan struct{}
	result error
}

func (r *recordingSender) Send(_ context.Context, event cloudevents.Event) cloudevents.Result {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.result
}

func (r *recordingSender) sent() []cloudevents.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cloudevents.Event(nil), r.events...)
}

func TestSignalerHooks(t *testing.T) {
	var misfired, finalized []TriggerKey
	var candidates []time.Time
	h := &SignalerHooks{
		OnMisfired:         func(tr Trigger) { misfired = append(misfired, tr.Key()) },
		OnFinalized:        func(tr Trigger) { finalized = append(finalized, tr.Key()) },
		OnSchedulingChange: func(c time.Time) { candidates = append(candidates, c) },
	}
	tr := newTestSimpleTrigger(0, 0)

	s := MultiSignaler(h, nil, NoopSignaler{}, h)
	s.TriggerMisfired(tr)
	s.TriggerFinalized(tr)
	s.SchedulingChanged(t0)

	assert.Equal(t, []TriggerKey{tr.Key(), tr.Key()}, misfired)
	assert.Equal(t, []TriggerKey{tr.Key(), tr.Key()}, finalized)
	assert.Equal(t, []time.Time{t0, t0}, candidates)

	var nilHooks *SignalerHooks
	assert.NotPanics(t, func() {
		nilHooks.TriggerMisfired(tr)
		(&SignalerHooks{}).TriggerFinalized(tr)
		(&SignalerHooks{}).SchedulingChanged(t0)
	})
}

func TestCloudEventSignaler(t *testing.T) {
	sender := &recordingSender{}
	s := NewCloudEventSignaler(sender, "/quartz/test")

	tr := newTestSimpleTrigger(0, 0)
	tr.SetNextFireTime(t0)
	s.TriggerMisfired(tr)
	s.TriggerFinalized(tr)
	s.SchedulingChanged(t0.Add(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	events := sender.sent()
	require.Len(t, events, 3)

	misfired := events[0]
	assert.Equal(t, EventTypeTriggerMisfired, misfired.Type())
	assert.Equal(t, "/quartz/test", misfired.Source())
	assert.Equal(t, "g.t", misfired.Subject())
	assert.NotEmpty(t, misfired.ID())
	require.NoError(t, misfired.Validate())

	var data TriggerEventData
	require.NoError(t, misfired.DataAs(&data))
	assert.Equal(t, "g.t", data.Trigger)
	assert.Equal(t, "g.j", data.Job)
	assert.True(t, data.NextFireTime.Equal(t0))
	assert.True(t, data.PreviousFireTime.IsZero())

	assert.Equal(t, EventTypeTriggerFinalized, events[1].Type())

	changed := events[2]
	assert.Equal(t, EventTypeSchedulingChanged, changed.Type())
	assert.Empty(t, changed.Subject())
	var sc SchedulingChangedData
	require.NoError(t, changed.DataAs(&sc))
	assert.True(t, sc.Candidate.Equal(t0.Add(time.Minute)))

	s.SchedulingChanged(t0)
	assert.Equal(t, int64(1), s.Dropped(), "events after Close are dropped")
	require.NoError(t, s.Close(ctx), "Close is idempotent")
}

func TestCloudEventSignalerDropsWhenFull(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	s := NewCloudEventSignaler(sender, "/quartz/test", WithEventBuffer(1))

	for range 5 {
		s.SchedulingChanged(t0)
	}
	// at most one event is in flight and one queued
	assert.GreaterOrEqual(t, s.Dropped(), int64(3))

	close(sender.block)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, int64(5), int64(len(sender.sent()))+s.Dropped())
}

func TestCloudEventSignalerLogsSendFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sender := &recordingSender{result: errors.New("connection refused")}
	s := NewCloudEventSignaler(sender, "/quartz/test",
		WithEventLogger(NewZapLogger(zap.New(core))),
		WithSendTimeout(time.Second))

	s.SchedulingChanged(t0)
	require.NoError(t, s.Close(context.Background()))

	entries := logs.FilterMessage("publish event").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, EventTypeSchedulingChanged, entries[0].ContextMap()["type"])
	assert.Equal(t, "connection refused", entries[0].ContextMap()["error"])
}

func TestCloudEventSignalerCloseTimeout(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	s := NewCloudEventSignaler(sender, "/quartz/test")
	s.SchedulingChanged(t0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)

	close(sender.block)
	require.NoError(t, s.Close(context.Background()))
}
