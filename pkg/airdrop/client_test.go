package airdrop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/spl-airdrop/pkg/rate"
	"github.com/code-payments/spl-airdrop/pkg/solana"
)

// newUnconfirmedServer answers every getSignatureStatuses with an unknown
// status, so confirmation waits poll until they time out.
func newUnconfirmedServer(t *testing.T) (string, *atomic.Int64) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		var req struct {
			ID int `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   []any{nil},
			},
		}))
	}))
	t.Cleanup(server.Close)

	return server.URL, &requests
}

func TestLimitedClient_ThrottlesConfirmationPolls(t *testing.T) {
	url, requests := newUnconfirmedServer(t)

	const (
		rps     = 5
		waiters = 4
	)
	sc := newLimitedClient(
		context.Background(),
		solana.New(url, solana.WithConfirmationTimeout(3*solana.PollRate)),
		rate.NewRPCLimiter(rps),
	)

	start := time.Now()
	var eg errgroup.Group
	for i := 0; i < waiters; i++ {
		sig := solana.Signature{byte(i + 1)}
		eg.Go(func() error {
			_, err := sc.GetSignatureStatus(sig, solana.CommitmentConfirmed)
			if !errors.Is(err, solana.ErrConfirmationTimeout) {
				return errors.Errorf("unexpected error: %v", err)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	elapsed := time.Since(start)

	// Each waiter polls three times. Unthrottled that is twelve requests in
	// well under a second, which exceeds the burst plus refill.
	assert.EqualValues(t, 3*waiters, requests.Load())
	allowed := rps + int64(rps*elapsed.Seconds()) + 1
	assert.LessOrEqual(t, requests.Load(), allowed, "%d requests in %s", requests.Load(), elapsed)
}

func TestLimitedClient_GatedCancellation(t *testing.T) {
	url, requests := newUnconfirmedServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := newLimitedClient(ctx, solana.New(url), rate.NewRPCLimiter(1))
	_, err := sc.GetSignatureStatuses([]solana.Signature{{1}})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, requests.Load())
}
