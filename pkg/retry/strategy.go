package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/code-payments/spl-airdrop/pkg/retry/backoff"
)

// Strategy decides, after a failed attempt, whether to try again. Strategies
// may block, which is how backoff is implemented.
type Strategy func(attempts uint, err error) bool

// Limit allows at most maxAttempts attempts in total, including the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors that match one of retriable.
func RetriableErrors(retriable ...error) Strategy {
	return func(_ uint, err error) bool {
		return matchesAny(err, retriable)
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NonRetriableIf stops once isTerminal matches the error. It covers typed
// errors that errors.Is can't compare, like on-chain transaction failures.
func NonRetriableIf(isTerminal func(error) bool) Strategy {
	return func(_ uint, err error) bool {
		return !isTerminal(err)
	}
}

// Context stops once ctx is done. Place it before any backoff so a cancelled
// run doesn't sleep.
func Context(ctx context.Context) Strategy {
	return func(uint, error) bool {
		return ctx.Err() == nil
	}
}

// Backoff sleeps for the strategy's delay, capped at maxBackoff, and always
// allows the retry.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, _ error) bool {
		sleep(min(strategy(attempts), maxBackoff))
		return true
	}
}

// BackoffWithJitter is Backoff with the capped delay randomly spread by
// +/- jitter. A 100ms delay with 0.1 jitter sleeps between 90ms and 110ms.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := min(strategy(attempts), maxBackoff)
		spread := (2*rand.Float64() - 1) * jitter
		sleep(time.Duration(float64(delay) * (1 + spread)))
		return true
	}
}

// Replaced in tests.
var sleep = time.Sleep
