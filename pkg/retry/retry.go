// Package retry runs an action until it succeeds or a strategy gives up.
//
// Attempts are counted from 1. After each failed attempt the strategies are
// consulted in order and the first refusal ends the loop. The caller always
// gets the action's own error back, even when a Context strategy is what
// stopped the loop, so sentinel checks on the result keep working after a
// cancellation. Strategies that sleep belong at the end of the list, so that
// a refusal ahead of them skips the delay.
package retry

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier retries actions with a fixed set of strategies.
type Retrier interface {
	Retry(action Action) (uint, error)
}

type retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier bound to strategies. Without any, the
// retrier loops until the action succeeds.
func NewRetrier(strategies ...Strategy) Retrier {
	return &retrier{
		strategies: strategies,
	}
}

func (r *retrier) Retry(action Action) (uint, error) {
	return Retry(action, r.strategies...)
}

// Retry runs action until it returns nil or a strategy refuses another
// attempt. It returns the number of attempts made and the last error.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for attempts := uint(1); ; attempts++ {
		err := action()
		if err == nil {
			return attempts, nil
		}

		if !allowed(strategies, attempts, err) {
			return attempts, err
		}
	}
}

func allowed(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}
