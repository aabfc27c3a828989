// Package retry provides the two backoff shapes the runner uses for cluster
// writes: a constant policy for alert-save bulk retries and an exponential
// policy for alert moves after a monitor is reindexed or deleted.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is an immutable retry schedule. Callers snapshot a policy before a
// multi-attempt operation; settings updates swap in a new policy without
// affecting in-flight retries.
type Policy struct {
	delay       time.Duration
	attempts    int
	exponential bool
}

// Constant returns a policy with a fixed delay between attempts.
func Constant(delay time.Duration, attempts int) Policy {
	return Policy{delay: delay, attempts: normalizeAttempts(attempts)}
}

// Exponential returns a policy whose delay doubles after each attempt,
// starting at the initial delay.
func Exponential(initial time.Duration, attempts int) Policy {
	return Policy{delay: initial, attempts: normalizeAttempts(attempts), exponential: true}
}

func normalizeAttempts(attempts int) int {
	if attempts < 1 {
		return 1
	}
	return attempts
}

// Attempts reports the total attempt budget.
func (p Policy) Attempts() int { return p.attempts }

// Delay reports the initial delay between attempts.
func (p Policy) Delay() time.Duration { return p.delay }

// Do invokes op, retrying per the schedule while attempts remain and
// retryable matches the returned error. A nil retryable retries every error.
// The last error is propagated once the attempt budget is exhausted; context
// cancellation aborts the wait between attempts.
func (p Policy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var schedule backoff.BackOff
	if p.exponential {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.delay
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		schedule = exp
	} else {
		schedule = backoff.NewConstantBackOff(p.delay)
	}

	schedule = backoff.WithMaxRetries(schedule, uint64(p.attempts-1))
	return backoff.Retry(wrapped, backoff.WithContext(schedule, ctx))
}
