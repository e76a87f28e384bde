// Package scheduler drives the extraction pipeline on a recurring interval.
// This file defines the retry policy: an explicit, independently testable
// object (max attempts plus a delay function) consumed by the runner, never
// inline ad-hoc loops.
package scheduler

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient failures.
//
// A failing operation is attempted at most MaxRetries+1 times. Delay is the
// wait before the first retry; each subsequent wait is multiplied by Backoff
// (a Backoff of 1.0 gives fixed delays).
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Backoff    float64
}

// Next returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Next(attempt int) time.Duration {
	d := p.Delay
	if d <= 0 {
		return 0
	}
	factor := p.Backoff
	if factor <= 0 {
		factor = 1
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Do runs fn, retrying while retryable(err) holds and the retry budget
// lasts. It returns nil on success, the last error when the budget is
// exhausted or the error is not retryable, and ctx.Err() if the context is
// cancelled while waiting.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}
		retriesTotal.Inc()
		if werr := sleep(ctx, p.Next(attempt)); werr != nil {
			return werr
		}
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
