package domain

import (
	"math"
	"math/rand"
	"time"
)

// BackoffKind selects how RetryPolicy.Delay computes the wait before the next
// attempt (spec §4.2).
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy is the tunable shape behind RetryManager.scheduleRetry (spec
// §4.2, §6 RETRY_* env vars). Outbox redelivery does not use it; see
// EventRetryDelay.
type RetryPolicy struct {
	MaxAttempts  int
	Backoff      BackoffKind
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Delay returns the wait before attemptNumber (1-indexed): InitialDelay for
// fixed backoff, or exponential backoff capped at MaxDelay, in both cases
// jittered by ±10% per spec §4.2's explicit
// jitter requirement — grounded on the teacher's RetryBankClient.backoff.
func (p RetryPolicy) Delay(attemptNumber int) time.Duration {
	var base time.Duration
	switch p.Backoff {
	case BackoffFixed:
		base = p.InitialDelay
	default: // exponential
		multiplier := math.Pow(2, float64(attemptNumber-1))
		base = time.Duration(float64(p.InitialDelay) * multiplier)
		if base > p.MaxDelay {
			base = p.MaxDelay
		}
	}
	return jitter(base)
}

// jitter adds uniform noise of ±10% of d, grounded on spec §4.2's jitter
// requirement (added to avoid thundering herd when many transactions retry
// on the same schedule).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.10
	delta := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(d) + delta)
	if result < 0 {
		return 0
	}
	return result
}

// EventRetryDelay computes the outbox redelivery delay from spec §4.4:
// min(1000 * 2^(retryCount-1), 60000) milliseconds.
func EventRetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	ms := math.Min(1000*math.Pow(2, float64(retryCount-1)), 60000)
	return time.Duration(ms) * time.Millisecond
}
