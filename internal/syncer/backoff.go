package syncer

import (
	"math/rand/v2"
	"time"
)

// Backoff policy constants
const (
	// BackoffBase is the delay after the first failed replay attempt.
	BackoffBase = 10 * time.Second
	// BackoffCap bounds the delay regardless of attempt count.
	BackoffCap = 10 * time.Minute
	// BackoffJitter is the fraction of the delay randomized in each direction.
	BackoffJitter = 0.25
)

// Delay computes the backoff before the next replay of an entry that has
// already failed the given number of times: exponential doubling from
// BackoffBase, capped at BackoffCap, with +/-25% jitter so a fleet of agents
// does not hammer a recovering origin in lockstep.
func Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 10s << 6 already exceeds the cap; clamp the shift before it overflows.
	if attempts > 6 {
		attempts = 6
	}
	d := BackoffBase << uint(attempts)
	if d > BackoffCap {
		d = BackoffCap
	}
	factor := 1 + BackoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}
