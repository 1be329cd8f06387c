// Package backoff computes delays between retries of a failing operation.
//
// The RAM engine uses it between chunk allocation attempts: when the OS
// refuses a chunk, the allocator waits for a short, growing delay before
// trying again with a smaller chunk, giving the kernel time to reclaim
// page cache.
package backoff

import (
	"math/rand/v2"
	"time"
)

// maxShift caps the exponent so the shifted delay cannot overflow.
const maxShift = 62

// Type selects the delay algorithm.
type Type int

const (
	// Exponential doubles the delay on every attempt (default).
	Exponential Type = iota
	// Jittered randomises each exponential delay by ±jitter.
	Jittered
)

// Strategy yields the delay to wait before retry number attempt (0-indexed).
type Strategy interface {
	NextDelay(attempt int) time.Duration
}

// New returns a Strategy of the given type. A zero or negative maxDelay
// disables the cap.
func New(t Type, initial, maxDelay time.Duration, jitter float64) Strategy {
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}

	switch t {
	case Jittered:
		return &jittered{initial: initial, maxDelay: maxDelay, jitter: clamp(jitter, 0, 1)}
	default:
		return &exponential{initial: initial, maxDelay: maxDelay}
	}
}

// exponential: initial * 2^attempt, capped at maxDelay.
type exponential struct {
	initial  time.Duration
	maxDelay time.Duration
}

func (e *exponential) NextDelay(attempt int) time.Duration {
	return expDelay(attempt, e.initial, e.maxDelay)
}

// jittered spreads retries of concurrent allocators so they do not hit the
// kernel in lockstep.
type jittered struct {
	initial  time.Duration
	maxDelay time.Duration
	jitter   float64
}

func (j *jittered) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	base := expDelay(attempt, j.initial, j.maxDelay)
	mult := 1.0 + (rand.Float64()*2-1)*j.jitter // #nosec G404 -- jitter does not need crypto rand
	return clamp(time.Duration(float64(base)*mult), 0, j.maxDelay)
}

func expDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}

	mult := time.Duration(int64(1) << uint(attempt))
	if initial > 0 && initial > maxDelay/mult {
		return maxDelay
	}
	return mult * initial
}

func clamp[T ~int64 | ~float64](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
