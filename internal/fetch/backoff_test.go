package fetch

import (
	"math/rand"
	"testing"
	"time"
)

func TestRawDelayMonotonicCapped(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt <= 10; attempt++ {
		d := rawDelay(attempt, base, max)
		if d < prev {
			t.Errorf("attempt %d: delay %v decreased from %v", attempt, d, prev)
		}
		if d > max {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, d, max)
		}
		prev = d
	}

	if got := rawDelay(0, base, max); got != 1*time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", got)
	}
	if got := rawDelay(3, base, max); got != 8*time.Second {
		t.Errorf("attempt 3: expected 8s, got %v", got)
	}
	if got := rawDelay(8, base, max); got != max {
		t.Errorf("attempt 8: expected cap %v, got %v", max, got)
	}
}

func TestRawDelayDefaults(t *testing.T) {
	if got := rawDelay(0, 0, 0); got != defaultBaseDelay {
		t.Errorf("expected default base %v, got %v", defaultBaseDelay, got)
	}
	if got := rawDelay(20, 0, 0); got != defaultMaxDelay {
		t.Errorf("expected default cap %v, got %v", defaultMaxDelay, got)
	}
}

func TestJitterStaysInBand(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := 10 * time.Second
	low := time.Duration(float64(base) * jitterLow)
	high := time.Duration(float64(base) * jitterHigh)

	for i := 0; i < 1000; i++ {
		d := jitter(base, rng.Float64)
		if d < low || d > high {
			t.Fatalf("iteration %d: %v outside [%v, %v]", i, d, low, high)
		}
	}
}

func TestJitterEdges(t *testing.T) {
	// Float truncation can shave a nanosecond off either edge.
	got := jitter(10*time.Second, func() float64 { return 0 })
	if got < 8500*time.Millisecond-time.Microsecond || got > 8500*time.Millisecond {
		t.Errorf("low edge: expected ~8.5s, got %v", got)
	}
	got = jitter(10*time.Second, func() float64 { return 1 })
	if got < 11500*time.Millisecond-time.Microsecond || got > 11500*time.Millisecond {
		t.Errorf("high edge: expected ~11.5s, got %v", got)
	}
}
