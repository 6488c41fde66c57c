// Package retry runs an action until it succeeds or a strategy gives up.
package retry

import "context"

// Action is the unit of work being retried.
type Action func() error

// Retrier retries actions with a fixed set of strategies.
type Retrier interface {
	Retry(action Action) (uint, error)
	RetryWithContext(ctx context.Context, action Action) (uint, error)
}

type retrier []Strategy

// NewRetrier returns a Retrier bound to strategies. With no strategies it
// retries until the action succeeds.
func NewRetrier(strategies ...Strategy) Retrier {
	return retrier(strategies)
}

func (r retrier) Retry(action Action) (uint, error) {
	return Retry(action, r...)
}

func (r retrier) RetryWithContext(ctx context.Context, action Action) (uint, error) {
	return RetryWithContext(ctx, action, r...)
}

// Retry calls action until it returns nil or a strategy declines another
// attempt, returning the number of attempts made and the last error.
// Strategies run in order after each failure, so ones that sleep belong at
// the end.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil || !shouldRetry(strategies, attempts, err) {
			return attempts, err
		}
	}
}

func shouldRetry(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}

// RetryWithContext is Retry that stops once ctx is done: no new attempt is
// started and no backoff is slept. If ctx is already done, action is never
// called and ctx's error is returned. Otherwise the action's last error is.
func RetryWithContext(ctx context.Context, action Action, strategies ...Strategy) (uint, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return Retry(action, append([]Strategy{Context(ctx)}, strategies...)...)
}
