package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 1000; i++ {
		allowed, err := l.Allow("rpc")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	assert.NoError(t, l.Wait(context.Background(), "rpc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, l.Wait(ctx, "rpc"))
}

func TestBucketLimiter_Allow(t *testing.T) {
	l := NewBucketLimiter(rate.Limit(3))

	allowed := func(key string) int {
		var n int
		for i := 0; i < 5; i++ {
			ok, err := l.Allow(key)
			require.NoError(t, err)
			if ok {
				n++
			}
		}
		return n
	}

	// Each key drains its own bucket.
	assert.Equal(t, 3, allowed("a"))
	assert.Equal(t, 3, allowed("b"))
	assert.Equal(t, 0, allowed("a"))
}

func TestBucketLimiter_Wait(t *testing.T) {
	l := NewBucketLimiter(rate.Limit(20))

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(context.Background(), "rpc"))
	}

	// The next token is about 50ms out, past this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "rpc"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "rpc"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewRPCLimiter(t *testing.T) {
	for _, rps := range []float64{0, -5} {
		assert.IsType(t, Unlimited{}, NewRPCLimiter(rps))
	}

	// Fractional rates still allow a single request up front.
	l := NewRPCLimiter(0.25)
	require.IsType(t, &BucketLimiter{}, l)

	first, err := l.Allow("rpc")
	require.NoError(t, err)
	second, err := l.Allow("rpc")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}
