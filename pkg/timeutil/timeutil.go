package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration among the given values, or zero
// if the slice is empty. Does not mutate the input.
func MaxDuration(durations []time.Duration) time.Duration {
	var max time.Duration
	for i, d := range durations {
		if i == 0 || d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max). Non-positive
// max returns 0 rather than panicking on rng.Int63n.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before the next retry attempt,
// given the 1-indexed attempt count, a jitter budget, an RNG, and the
// backoff curve parameters. The result is capped at param.MaxDuration and
// widened by a uniform jitter in [0, jitter).
func ExponentialBackoffDelay(backoffCount int, jitter time.Duration, rng rand.Rand, param BackoffParam) time.Duration {
	exponent := float64(backoffCount - 1)
	delay := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), exponent)
	if max := param.MaxDuration(); max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay) + ComputeJitter(jitter, rng)
}

// Sleeper abstracts time.Sleep so retry loops and per-domain delay waits can
// be driven by a fake clock in tests without paying real wall-clock time.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps on the wall clock via time.Sleep.
type RealSleeper struct{}

func NewRealSleeper() RealSleeper {
	return RealSleeper{}
}

func (RealSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// NoopSleeper never sleeps. Used by tests that exercise delay/backoff
// computation without waiting on it.
type NoopSleeper struct{}

func (NoopSleeper) Sleep(time.Duration) {}
