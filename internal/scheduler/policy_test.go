package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Next_ExponentialGrowth(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Delay: time.Second, Backoff: 2.0}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.Next(i); got != w {
			t.Fatalf("Next(%d) = %v; want %v", i, got, w)
		}
	}
}

func TestRetryPolicy_Next_FixedAndZeroDelay(t *testing.T) {
	fixed := RetryPolicy{MaxRetries: 3, Delay: 5 * time.Second, Backoff: 1.0}
	if fixed.Next(0) != 5*time.Second || fixed.Next(2) != 5*time.Second {
		t.Fatalf("fixed backoff should not grow")
	}
	none := RetryPolicy{MaxRetries: 3, Delay: 0, Backoff: 2.0}
	if none.Next(4) != 0 {
		t.Fatalf("zero delay should stay zero")
	}
	// Backoff <= 0 degrades to fixed delays rather than shrinking.
	odd := RetryPolicy{MaxRetries: 3, Delay: time.Second, Backoff: 0}
	if odd.Next(2) != time.Second {
		t.Fatalf("non-positive backoff should behave as fixed")
	}
}

func TestRetryPolicy_Do_AttemptBound(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Delay: time.Millisecond, Backoff: 1.0}
	calls := 0
	boom := errors.New("transient boom")

	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error returned, got %v", err)
	}
	// MaxRetries retries on top of the initial attempt.
	if calls != 3 {
		t.Fatalf("calls = %d; want 3", calls)
	}
}

func TestRetryPolicy_Do_SuccessStopsRetrying(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Delay: time.Millisecond, Backoff: 1.0}
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success after 2 calls, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicy_Do_NonRetryableReturnsImmediately(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Delay: time.Millisecond, Backoff: 1.0}
	calls := 0
	fatal := errors.New("fatal")
	err := p.Do(context.Background(), func(error) bool { return false }, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single attempt for non-retryable, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicy_Do_ContextCancelDuringWait(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Delay: time.Hour, Backoff: 1.0}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(error) bool { return true }, func(context.Context) error {
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Do did not return after cancellation")
	}
}
