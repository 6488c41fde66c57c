package retry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/spl-airdrop/pkg/retry/backoff"
)

// recordSleeps swaps out the sleep func for the duration of the test.
func recordSleeps(t *testing.T) *[]time.Duration {
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = time.Sleep })
	return &slept
}

func TestLimit(t *testing.T) {
	s := Limit(2)
	assert.True(t, s(1, errors.New("err")))
	assert.False(t, s(2, errors.New("err")))

	attempts, err := Retry(func() error { return errors.New("err") }, Limit(2))
	assert.EqualError(t, err, "err")
	assert.EqualValues(t, 2, attempts)
}

func TestRetriableErrors(t *testing.T) {
	known := []error{errors.New("a"), errors.New("b")}
	unknown := errors.New("unknown")

	retriable := RetriableErrors(known...)
	for _, err := range known {
		for _, variant := range []error{err, errors.Wrap(err, "wrapped")} {
			assert.True(t, retriable(1, variant))
		}
	}
	assert.False(t, retriable(1, unknown))
}

func TestNonRetriableIf(t *testing.T) {
	type terminalError struct{ error }

	s := NonRetriableIf(func(err error) bool {
		var target terminalError
		return errors.As(err, &target)
	})

	assert.False(t, s(1, terminalError{errors.New("rejected")}))
	assert.False(t, s(1, errors.Wrap(terminalError{errors.New("rejected")}, "wrapped")))
	assert.True(t, s(1, errors.New("timeout")))
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Context(ctx)
	assert.True(t, s(1, errors.New("err")))

	cancel()
	assert.False(t, s(2, errors.New("err")))
}

func TestBackoff_Capped(t *testing.T) {
	slept := recordSleeps(t)

	s := Backoff(backoff.BinaryExponential(100*time.Millisecond), 300*time.Millisecond)
	for i := uint(1); i <= 4; i++ {
		assert.True(t, s(i, errors.New("err")))
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, *slept)
}

func TestBackoffWithJitter(t *testing.T) {
	slept := recordSleeps(t)

	const iterations = 10_000
	delay := time.Millisecond

	s := BackoffWithJitter(backoff.Constant(delay), delay, 0.1)
	for i := 0; i < iterations; i++ {
		require.True(t, s(1, errors.New("err")))
	}

	var total float64
	for _, d := range *slept {
		assert.InDelta(t, float64(delay), float64(d), 0.1*float64(delay)+1)
		total += float64(d)
	}
	mean := total / iterations
	assert.InDelta(t, float64(delay), mean, 0.01*float64(delay))

	// Uniform over +/- 10% has a mean absolute deviation of 5%.
	var dev float64
	for _, d := range *slept {
		dev += math.Abs(float64(d) - mean)
	}
	assert.InDelta(t, 0.05*float64(delay), dev/iterations, 0.005*float64(delay))
}
