package airdrop

import (
	"context"
	"crypto/ed25519"

	"github.com/code-payments/spl-airdrop/pkg/rate"
	"github.com/code-payments/spl-airdrop/pkg/solana"
)

const rpcLimiterKey = "rpc"

// limitedClient is a solana.Client that passes every call through a shared
// limiter first. A run's workers share one, so the limit is pool-wide.
type limitedClient struct {
	ctx     context.Context
	sc      solana.Client
	limiter rate.Limiter
}

// newLimitedClient throttles sc. A solana.Gated client is throttled per HTTP
// request, which covers its confirmation polls and transient retries. Any
// other client is throttled once per method call.
func newLimitedClient(ctx context.Context, sc solana.Client, limiter rate.Limiter) solana.Client {
	c := &limitedClient{
		ctx:     ctx,
		sc:      sc,
		limiter: limiter,
	}
	if g, ok := sc.(solana.Gated); ok {
		return g.WithGate(c.wait)
	}
	return c
}

func (c *limitedClient) wait() error {
	return c.limiter.Wait(c.ctx, rpcLimiterKey)
}

func (c *limitedClient) GetAccountInfo(account ed25519.PublicKey, commitment solana.Commitment) (solana.AccountInfo, error) {
	if err := c.wait(); err != nil {
		return solana.AccountInfo{}, err
	}
	return c.sc.GetAccountInfo(account, commitment)
}

func (c *limitedClient) GetBalance(account ed25519.PublicKey) (uint64, error) {
	if err := c.wait(); err != nil {
		return 0, err
	}
	return c.sc.GetBalance(account)
}

func (c *limitedClient) GetLatestBlockhash() (solana.Blockhash, error) {
	if err := c.wait(); err != nil {
		return solana.Blockhash{}, err
	}
	return c.sc.GetLatestBlockhash()
}

func (c *limitedClient) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	if err := c.wait(); err != nil {
		return 0, err
	}
	return c.sc.GetMinimumBalanceForRentExemption(size)
}

func (c *limitedClient) GetSignatureStatus(sig solana.Signature, commitment solana.Commitment) (*solana.SignatureStatus, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return c.sc.GetSignatureStatus(sig, commitment)
}

func (c *limitedClient) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return c.sc.GetSignatureStatuses(sigs)
}

func (c *limitedClient) GetTokenAccountBalance(account ed25519.PublicKey, commitment solana.Commitment) (uint64, uint64, error) {
	if err := c.wait(); err != nil {
		return 0, 0, err
	}
	return c.sc.GetTokenAccountBalance(account, commitment)
}

func (c *limitedClient) SubmitTransaction(txn solana.Transaction, commitment solana.Commitment) (solana.Signature, error) {
	if err := c.wait(); err != nil {
		return txn.Signature(), err
	}
	return c.sc.SubmitTransaction(txn, commitment)
}
