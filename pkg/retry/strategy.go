package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/code-payments/tokenfactory-client/pkg/retry/backoff"
)

// Strategy is a function that determines whether or not an action should be
// retried. Strategies are allowed to delay or cause other side effects.
type Strategy func(attempts uint, err error) bool

// Limit returns a strategy that limits the total number of retries.
// maxAttempts should be >= 1, since the action is evaluateed first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, err error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors returns a strategy that specifies which errors can be retried.
func RetriableErrors(retriableErrors ...error) Strategy {
	return func(attempts uint, err error) bool {
		for _, e := range retriableErrors {
			if errors.Is(err, e) {
				return true
			}
		}

		return false
	}
}

// Backoff returns a strategy that will delay the next retry, provided the
// action resulted in an error. The returned strategy will cause the caller
// (the retrier) to sleep.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, err error) bool {
		delay := strategy(attempts)
		cappedDelay := time.Duration(math.Min(float64(maxBackoff), float64(delay)))
		sleeperImpl.Sleep(context.Background(), cappedDelay)
		return true
	}
}

// BackoffWithJitter returns a strategy similar to Backoff, but induces a jitter
// on the total delay. The maxBackoff is calculated before the jitter.
//
// The jitter parameter is a percentage of the total delay (after capping) that
// the timing can be off of. For example, a capped delay of 100ms with a jitter
// of 0.1 will result in a delay of 100ms +/- 10ms.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, err error) bool {
		delay := strategy(attempts)
		cappedDelay := time.Duration(math.Min(float64(maxBackoff), float64(delay)))

		// Center the jitter around the capped delay:
		//     <------cappedDelay------>
		//      jitter           jitter
		cappedDelayWithJitter := time.Duration(float64(cappedDelay) * (1 + (rand.Float64()*jitter*2 - jitter)))
		sleeperImpl.Sleep(context.Background(), cappedDelayWithJitter)
		return true
	}
}

// Context returns a strategy that stops retrying once ctx is done.
func Context(ctx context.Context) Strategy {
	return func(attempts uint, err error) bool {
		return ctx.Err() == nil
	}
}

// BackoffContext is Backoff, except the delay is cut short when ctx is done,
// in which case no further retries are performed.
func BackoffContext(ctx context.Context, strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, err error) bool {
		delay := strategy(attempts)
		cappedDelay := time.Duration(math.Min(float64(maxBackoff), float64(delay)))
		return sleeperImpl.Sleep(ctx, cappedDelay) == nil
	}
}

type sleeper interface {
	Sleep(context.Context, time.Duration) error
}

// realSleeper uses a timer to perform actual sleeps
type realSleeper struct{}

func (r *realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var sleeperImpl sleeper = &realSleeper{}
