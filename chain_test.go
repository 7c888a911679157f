package quartz

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutionContext() *JobExecutionContext {
	job := NewJob("noop").WithIdentity("j", "g").MustBuild()
	return &JobExecutionContext{
		JobDetail: job,
		Trigger:   newTestSimpleTrigger(0, 0),
		FireTime:  t0,
	}
}

func appendingWrapper(s *[]string, name string) JobWrapper {
	return func(j Job) Job {
		return JobFunc(func(ctx context.Context, jc *JobExecutionContext) error {
			*s = append(*s, name)
			return j.Execute(ctx, jc)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	job := JobFunc(func(context.Context, *JobExecutionContext) error {
		order = append(order, "job")
		return nil
	})

	wrapped := NewChain(
		appendingWrapper(&order, "first"),
		appendingWrapper(&order, "second"),
		appendingWrapper(&order, "third"),
	).Then(job)
	require.NoError(t, wrapped.Execute(context.Background(), newTestExecutionContext()))
	assert.Equal(t, []string{"first", "second", "third", "job"}, order)

	order = nil
	require.NoError(t, NewChain().Then(job).Execute(context.Background(), newTestExecutionContext()))
	assert.Equal(t, []string{"job"}, order)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := PrintfLogger(log.New(&buf, "", 0))

	job := JobFunc(func(context.Context, *JobExecutionContext) error {
		panic("kaboom")
	})
	err := NewChain(Recover(logger)).Then(job).Execute(context.Background(), newTestExecutionContext())

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, "job panicked: kaboom", err.Error())
	assert.Contains(t, buf.String(), "panic_type=string")
}

func TestRecoverUnwrapsErrorPanics(t *testing.T) {
	job := JobFunc(func(context.Context, *JobExecutionContext) error {
		panic(io.ErrUnexpectedEOF)
	})
	err := Recover(DiscardLogger)(job).Execute(context.Background(), newTestExecutionContext())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	slow := JobFunc(func(ctx context.Context, _ *JobExecutionContext) error {
		defer close(finished)
		<-release
		return nil
	})
	err := Timeout(DiscardLogger, 10*time.Millisecond)(slow).Execute(context.Background(), newTestExecutionContext())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-finished:
		t.Fatal("the wrapper waited for a job ignoring its context")
	default:
	}
	close(release)
	<-finished

	fast := JobFunc(func(context.Context, *JobExecutionContext) error { return errors.New("fast") })
	err = Timeout(DiscardLogger, time.Second)(fast).Execute(context.Background(), newTestExecutionContext())
	assert.EqualError(t, err, "fast")
}

func TestTimeoutDisabled(t *testing.T) {
	job := JobFunc(func(context.Context, *JobExecutionContext) error { return nil })
	wrapped := Timeout(DiscardLogger, 0)(job)
	_, isTimeout := wrapped.(*timeoutJob)
	assert.False(t, isTimeout)
}
