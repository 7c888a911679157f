package quartz

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrCircuitOpen is returned instead of executing a job whose circuit
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// jitterFraction is the maximum share of a retry delay added or subtracted
// as jitter.
const jitterFraction = 0.1

// backoffDelay returns the delay before retry attempt (2 is the first retry):
// initialDelay * multiplier^(attempt-2), capped at maxDelay, with ±10% jitter.
func backoffDelay(attempt int, initialDelay, maxDelay time.Duration, multiplier float64) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(multiplier, float64(attempt-2)))
	if delay > maxDelay {
		delay = maxDelay
	}
	// #nosec G404 -- jitter needs no cryptographic randomness
	jitter := time.Duration(float64(delay) * jitterFraction * (2*rand.Float64() - 1))
	return delay + jitter
}

type retryJob struct {
	inner        Job
	logger       Logger
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

func (r *retryJob) Execute(ctx context.Context, jc *JobExecutionContext) error {
	maxAttempts := r.maxRetries + 1
	if r.maxRetries < 0 {
		maxAttempts = 0
	}

	var err error
	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt, r.initialDelay, r.maxDelay, r.multiplier)
			r.logger.Info("retry", "job", jc.JobDetail.Key(), "attempt", attempt, "delay", delay, "last_error", err)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			}
		}

		err = r.inner.Execute(ctx, jc)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", "job", jc.JobDetail.Key(), "attempt", attempt)
			}
			return nil
		}
		// The job decided itself what should happen next.
		var jee *JobExecutionError
		if errors.As(err, &jee) {
			return err
		}
	}

	r.logger.Error(err, "retry exhausted", "job", jc.JobDetail.Key(), "attempts", maxAttempts)
	return err
}

// RetryWithBackoff retries a job returning an error with exponential
// backoff, inside the same firing. Errors of type *JobExecutionError are
// returned without retrying.
//
// maxRetries of 0 executes once, N allows N retries and -1 retries until
// the job succeeds or its context is canceled.
//
// Retry behavior for maxRetries=3, initialDelay=1s, multiplier=2.0:
//
//	| Attempt | Delay | Action            |
//	|---------|-------|-------------------|
//	| 1       | 0     | Execute           |
//	| 2       | 1s    | Retry after delay |
//	| 3       | 2s    | Retry after delay |
//	| 4       | 4s    | Final retry       |
//	| -       | -     | Return last error |
func RetryWithBackoff(logger Logger, maxRetries int, initialDelay, maxDelay time.Duration, multiplier float64) JobWrapper {
	return func(j Job) Job {
		return &retryJob{
			inner:        j,
			logger:       logger,
			maxRetries:   maxRetries,
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			multiplier:   multiplier,
		}
	}
}

type circuitBreakerJob struct {
	inner     Job
	logger    Logger
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	lastFail time.Time
}

func (c *circuitBreakerJob) Execute(ctx context.Context, jc *JobExecutionContext) error {
	// FireTime follows the scheduler's clock.
	now := jc.FireTime
	if now.IsZero() {
		now = time.Now()
	}

	c.mu.Lock()
	failures, lastFail := c.failures, c.lastFail
	c.mu.Unlock()

	if failures >= c.threshold {
		if since := now.Sub(lastFail); since < c.cooldown {
			remaining := c.cooldown - since
			c.logger.Info("circuit breaker open", "job", jc.JobDetail.Key(), "failures", failures, "cooldown_remaining", remaining.Round(time.Second))
			return errors.Wrapf(ErrCircuitOpen, "job %s: %d consecutive failures", jc.JobDetail.Key(), failures)
		}
		c.logger.Info("circuit breaker half-open", "job", jc.JobDetail.Key())
	}

	err := c.inner.Execute(ctx, jc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures++
		c.lastFail = now
		if c.failures == c.threshold {
			c.logger.Error(err, "circuit breaker opened", "job", jc.JobDetail.Key(), "failures", c.failures, "cooldown", c.cooldown)
		} else {
			c.logger.Error(err, "circuit breaker recorded failure", "job", jc.JobDetail.Key(), "failures", c.failures, "threshold", c.threshold)
		}
		return err
	}
	if c.failures >= c.threshold {
		c.logger.Info("circuit breaker closed", "job", jc.JobDetail.Key())
	}
	c.failures = 0
	return nil
}

// CircuitBreaker stops executing a job after threshold consecutive failed
// firings. While open, firings return ErrCircuitOpen without running the
// job. After cooldown one firing is let through: success closes the
// circuit, failure opens it again.
//
// State transitions:
//
//	CLOSED --[threshold failures]--> OPEN --[cooldown expires]--> HALF-OPEN
//	   ^                                                              |
//	   +------------------[success]-----------------------------------+
//	                      +--[failure]--------------------------------+
//	                      v
//	                    OPEN
//
// Each wrapped job keeps its own breaker. A Scheduler wraps every
// registered job once, so each job type gets one breaker.
func CircuitBreaker(logger Logger, threshold int, cooldown time.Duration) JobWrapper {
	return func(j Job) Job {
		return &circuitBreakerJob{
			inner:     j,
			logger:    logger,
			threshold: max(threshold, 1),
			cooldown:  cooldown,
		}
	}
}
