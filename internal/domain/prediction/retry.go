package prediction

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy governs attempt ceilings and retry spacing for prediction jobs.
// The zero value is unusable; build one with NewRetryPolicy.
type RetryPolicy struct {
	// MaxAttempts is the total engine calls allowed per job.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// Factor multiplies the delay for each further attempt.
	Factor float64
	// Cap bounds the computed delay; zero means uncapped.
	Cap time.Duration
	// Jitter is the fractional randomisation applied to the delay,
	// in [0, 1).  Zero disables jitter.
	Jitter float64

	// rand yields values in [0, 1) for jitter.  Injected for tests.
	rand func() float64
}

// NewRetryPolicy builds a policy with the shared process-wide random source.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration, factor float64, cap time.Duration, jitter float64) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Factor:      factor,
		Cap:         cap,
		Jitter:      jitter,
		rand:        rand.Float64,
	}
}

// WithRandSource returns a copy of the policy using fn for jitter.
func (p RetryPolicy) WithRandSource(fn func() float64) RetryPolicy {
	p.rand = fn
	return p
}

// Backoff returns the delay before the retry following the given attempt
// number (1-based: attempt 1 is the first call).  The exponential delay is
// capped first, then jittered, so the jittered value stays within
// [cap*(1-jitter), cap*(1+jitter)] at the ceiling.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.Cap > 0 && delay > float64(p.Cap) {
		delay = float64(p.Cap)
	}

	if p.Jitter > 0 {
		source := p.rand
		if source == nil {
			source = rand.Float64
		}
		// Spread across [delay*(1-jitter), delay*(1+jitter)].
		delay *= 1 - p.Jitter + 2*p.Jitter*source()
	}

	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
