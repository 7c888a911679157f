package quartz

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
)

// JobWrapper decorates the given Job with some behavior.
type JobWrapper func(Job) Job

// Chain is a sequence of JobWrappers that decorates executed jobs with
// cross-cutting behaviors like panic recovery or deadlines.
type Chain struct {
	wrappers []JobWrapper
}

// NewChain returns a Chain consisting of the given JobWrappers.
func NewChain(c ...JobWrapper) Chain {
	return Chain{c}
}

// Then decorates the given job with all JobWrappers in the chain.
//
// This:
//
//	NewChain(m1, m2, m3).Then(job)
//
// is equivalent to:
//
//	m1(m2(m3(job)))
func (c Chain) Then(j Job) Job {
	for i := range c.wrappers {
		j = c.wrappers[len(c.wrappers)-i-1](j)
	}
	return j
}

// PanicError is the error a recovered job panic is reported as.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", p.Value)
}

// Unwrap returns the panic value when it is an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

func stack() []byte {
	const size = 64 << 10
	buf := make([]byte, size)
	return buf[:runtime.Stack(buf, false)]
}

type recoverJob struct {
	inner  Job
	logger Logger
}

func (r *recoverJob) Execute(ctx context.Context, jc *JobExecutionContext) (err error) {
	defer func() {
		if rv := recover(); rv != nil {
			pe := &PanicError{Value: rv, Stack: stack()}
			r.logger.Error(pe, "panic",
				"job", jc.JobDetail.Key(),
				"trigger", jc.Trigger.Key(),
				"panic_type", fmt.Sprintf("%T", rv),
				"stack", "...\n"+string(pe.Stack))
			err = pe
		}
	}()
	return r.inner.Execute(ctx, jc)
}

// Recover turns panics in wrapped jobs into a *PanicError and logs them with
// the provided logger. The firing then completes like any other failed
// execution instead of taking the process down.
//
// Example:
//
//	quartz.NewScheduler(store, quartz.WithChain(quartz.Recover(logger)))
func Recover(logger Logger) JobWrapper {
	return func(j Job) Job {
		return &recoverJob{inner: j, logger: logger}
	}
}

type timeoutJob struct {
	inner   Job
	timeout time.Duration
	logger  Logger
}

func (t *timeoutJob) Execute(ctx context.Context, jc *JobExecutionContext) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.inner.Execute(ctx, jc)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		err := errors.Wrapf(ctx.Err(), "job %s exceeded timeout of %v", jc.JobDetail.Key(), t.timeout)
		t.logger.Error(err, "timeout", "job", jc.JobDetail.Key(), "duration", t.timeout)
		return err
	}
}

// Timeout runs wrapped jobs with a context that is canceled after timeout.
// If the job has not returned by then, the wrapper returns a
// context.DeadlineExceeded error and the job's goroutine is abandoned: jobs
// that ignore their context keep running in the background.
//
// A timeout of zero or negative disables the timeout and returns the job unchanged.
func Timeout(logger Logger, timeout time.Duration) JobWrapper {
	return func(j Job) Job {
		if timeout <= 0 {
			return j
		}
		return &timeoutJob{inner: j, timeout: timeout, logger: logger}
	}
}
