package shared

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// RetryPolicy bounds the internal retries of transient store failures.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Attempts  int // Total attempts including the first (minimum 1)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  domain.DefaultTransientAttempts,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}
}

// Do runs f until it succeeds, fails with a non-transient error,
// or the attempts are used up. Only domain.IsTransient errors are retried.
// f must re-read and re-validate its state on every call.
func (p RetryPolicy) Do(ctx context.Context, f func() error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = f()
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		// Exponential backoff with jitter, capped at MaxDelay.
		delay := p.BaseDelay << uint(attempt)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if delay > 0 {
			jitter := time.Duration(rand.Int64N(int64(delay/2) + 1))
			delay = delay - delay/4 + jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
