package decide

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by NewRetry for a policy whose
// constraints do not hold.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy configures automatic retries for transient provider failures.
// Backoff is exponential with jitter: min(BaseDelay * 2^attempt, MaxDelay)
// plus a random component up to BaseDelay.
type RetryPolicy struct {
	// MaxAttempts is the total number of Decide attempts, including the
	// first. Must be at least 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration

	// Retryable classifies errors. Nil selects the default: protocol
	// sentinels (ErrAwaitingInput, ErrMalformedResponse, ErrDecisionTimeout,
	// ErrRecordingExhausted) and context errors are final, everything else
	// is treated as transient.
	Retryable func(error) bool
}

func (rp RetryPolicy) validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("%w: MaxAttempts %d", ErrInvalidRetryPolicy, rp.MaxAttempts)
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return fmt.Errorf("%w: MaxDelay below BaseDelay", ErrInvalidRetryPolicy)
	}
	return nil
}

// retryableDefault holds for errors a later attempt could plausibly clear:
// network hiccups, 429/5xx transport failures. The protocol sentinels carry
// meaning the executor acts on and must pass through unchanged.
func retryableDefault(err error) bool {
	switch {
	case errors.Is(err, ErrAwaitingInput),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrDecisionTimeout),
		errors.Is(err, ErrRecordingExhausted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Retry wraps a provider and re-issues decisions that fail with a transient
// error, backing off between attempts. The wrapped provider sees the same
// request each time, so recording a retried session stores only the attempt
// that succeeded.
type Retry struct {
	inner  Provider
	policy RetryPolicy
}

// NewRetry validates the policy and wraps the provider.
func NewRetry(inner Provider, policy RetryPolicy) (*Retry, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if policy.Retryable == nil {
		policy.Retryable = retryableDefault
	}
	return &Retry{inner: inner, policy: policy}, nil
}

// Decide implements Provider.
func (r *Retry) Decide(ctx context.Context, req Request) (Response, error) {
	var last error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.backoff(attempt-1)); err != nil {
				return Response{}, err
			}
		}
		resp, err := r.inner.Decide(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !r.policy.Retryable(err) {
			return Response{}, err
		}
		last = err
	}
	return Response{}, fmt.Errorf("decision failed after %d attempts: %w", r.policy.MaxAttempts, last)
}

// backoff computes the delay before retry attempt n (zero-based). Jitter
// spreads concurrent retries so failing backends are not hit in lockstep.
func (r *Retry) backoff(attempt int) time.Duration {
	base := r.policy.BaseDelay
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
		delay = r.policy.MaxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(base)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
