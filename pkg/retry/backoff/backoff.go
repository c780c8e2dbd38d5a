// Package backoff computes the delay before the next attempt of a retried
// action, such as an RPC call that hit a rate limit or a status poll.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay to apply after the given attempt. Attempts start
// at 1.
type Strategy func(attempts uint) time.Duration

// Constant waits interval after every attempt. Status polling uses it.
func Constant(interval time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		return interval
	}
}

// Exponential grows the delay by a factor of base per attempt:
//
//	delay = baseDelay * base^(attempts - 1)
//
// Exponential(2*time.Second, 3) yields 2s, 6s, 18s, 54s and so on. Delays too
// large for a time.Duration saturate at math.MaxInt64. Callers are expected
// to cap the delay themselves.
func Exponential(baseDelay time.Duration, base float64) Strategy {
	return func(attempts uint) time.Duration {
		if attempts == 0 {
			attempts = 1
		}

		delay := float64(baseDelay) * math.Pow(base, float64(attempts-1))
		if delay >= math.MaxInt64 || math.IsInf(delay, 0) || math.IsNaN(delay) {
			return math.MaxInt64
		}
		return time.Duration(delay)
	}
}

// BinaryExponential doubles the delay per attempt, starting at baseDelay.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return Exponential(baseDelay, 2)
}
