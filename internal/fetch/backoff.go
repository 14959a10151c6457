package fetch

import (
	"math/rand"
	"time"
)

const (
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 30 * time.Second

	// Uniform jitter band around the exponential delay. Spreading retries
	// avoids synchronized storms from concurrent jobs hitting the same
	// mirror after a shared outage.
	jitterLow  = 0.85
	jitterHigh = 1.15
)

// rawDelay computes the unjittered exponential delay for an attempt:
// min(base * 2^attempt, max). Attempt 0 is the first retry.
func rawDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if max <= 0 {
		max = defaultMaxDelay
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// jitter scales a delay by a uniform factor in [jitterLow, jitterHigh).
// The random source is injectable for deterministic tests.
func jitter(d time.Duration, randFloat func() float64) time.Duration {
	if randFloat == nil {
		randFloat = rand.Float64
	}
	factor := jitterLow + (jitterHigh-jitterLow)*randFloat()
	return time.Duration(float64(d) * factor)
}
