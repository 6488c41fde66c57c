// Package airdrop transfers tokens from a funding wallet to a list of
// destinations, and verifies the resulting balances.
package airdrop

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/spl-airdrop/pkg/cache"
	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/rate"
	"github.com/code-payments/spl-airdrop/pkg/retry"
	"github.com/code-payments/spl-airdrop/pkg/retry/backoff"
	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
	sync_util "github.com/code-payments/spl-airdrop/pkg/sync"
)

const (
	ownerLockStripes     = 256
	resolvedAccountsSize = 100_000
)

// ErrInsufficientBalance indicates the source account can't cover the sum of
// the requested counts. No transfers are made in that case.
var ErrInsufficientBalance = errors.New("insufficient source balance")

// Service runs airdrops and verifications for a single mint, funded by a
// single wallet.
type Service struct {
	log  *logrus.Entry
	conf *conf

	sc         solana.Client
	commitment solana.Commitment
	wallet     *common.Account
	mint       *common.Account
	limiter    rate.Limiter

	// Owners that appear more than once in a list are resolved once, and
	// never concurrently.
	ownerLocks       *sync_util.StripedLock
	resolvedAccounts *cache.Cache[ed25519.PublicKey]
}

// New returns a Service. wallet must carry its private key, since it signs
// every transfer and pays for every account it creates.
func New(sc solana.Client, commitment solana.Commitment, wallet, mint *common.Account, configProvider ConfigProvider) (*Service, error) {
	if !wallet.CanSign() {
		return nil, errors.New("wallet keypair is required")
	}
	if mint == nil {
		return nil, errors.New("mint is required")
	}

	s := &Service{
		log:        logrus.StandardLogger().WithField("type", "airdrop/service"),
		conf:       configProvider(),
		sc:         sc,
		commitment: commitment,
		wallet:     wallet,
		mint:       mint,

		ownerLocks:       sync_util.NewStripedLock(ownerLockStripes),
		resolvedAccounts: cache.New[ed25519.PublicKey](resolvedAccountsSize),
	}

	ctx := context.Background()
	if err := s.conf.validate(ctx); err != nil {
		return nil, err
	}
	s.limiter = rate.NewRPCLimiter(s.conf.rpcRateLimit.Get(ctx))

	return s, nil
}

// tokenClient returns a token client whose RPCs are throttled by the
// service's limiter for as long as ctx lives.
func (s *Service) tokenClient(ctx context.Context) *token.Client {
	return token.NewClient(newLimitedClient(ctx, s.sc, s.limiter), s.mint.Public(), s.commitment)
}

// isTerminal reports errors that retrying won't fix.
func isTerminal(err error) bool {
	switch {
	case errors.Is(err, common.ErrOwnerOffCurve),
		errors.Is(err, token.ErrAccountNotFound),
		errors.Is(err, token.ErrInvalidTokenAccount),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

func (s *Service) backoffStrategies(ctx context.Context, maxAttempts uint64, base time.Duration) []retry.Strategy {
	return []retry.Strategy{
		retry.NonRetriableIf(isTerminal),
		retry.Limit(uint(maxAttempts)),
		retry.BackoffWithJitter(backoff.BinaryExponential(base), s.conf.maxBackoff.Get(ctx), s.conf.backoffJitter.Get(ctx)),
	}
}

// resolve returns owner's associated account for the mint. Unless create is
// false, the account is created if it doesn't exist yet, funded by the
// wallet. Attempts are bounded, and accounts known to exist are cached.
func (s *Service) resolve(ctx context.Context, log *logrus.Entry, tc *token.Client, owner *common.Account, create bool) (ed25519.PublicKey, error) {
	if !owner.IsOnCurve() {
		return nil, common.ErrOwnerOffCurve
	}

	unlock := s.ownerLocks.Lock(owner.Public())
	defer unlock()

	key := owner.String()
	if addr, ok := s.resolvedAccounts.Get(key); ok {
		return addr, nil
	}

	addr, err := s.resolveUncached(ctx, log, tc, owner, create)
	if err != nil {
		return addr, err
	}

	s.resolvedAccounts.Put(key, addr)
	return addr, nil
}

func (s *Service) resolveUncached(ctx context.Context, log *logrus.Entry, tc *token.Client, owner *common.Account, create bool) (ed25519.PublicKey, error) {
	var addr ed25519.PublicKey
	attempts, err := retry.RetryWithContext(
		ctx,
		func() error {
			var err error
			if create {
				addr, err = tc.GetOrCreateAssociatedAccount(s.wallet.Signer(), owner.Public())
			} else {
				addr, _, err = tc.GetAssociatedAccount(owner.Public())
			}

			if err != nil && !isTerminal(err) {
				log.WithError(err).Warn("failed to resolve token account, retrying")
			}
			return err
		},
		s.backoffStrategies(ctx, s.conf.maxResolveAttempts.Get(ctx), s.conf.resolveBackoff.Get(ctx))...,
	)
	if err != nil {
		return addr, errors.Wrapf(err, "failed to resolve token account after %d attempt(s)", attempts)
	}
	return addr, nil
}

// getBalance reads a token account balance. Attempts are bounded.
func (s *Service) getBalance(ctx context.Context, log *logrus.Entry, tc *token.Client, addr ed25519.PublicKey) (uint64, error) {
	var balance uint64
	attempts, err := retry.RetryWithContext(
		ctx,
		func() error {
			var err error
			balance, err = tc.GetBalance(addr)
			if err != nil {
				log.WithError(err).Warn("failed to get balance, retrying")
			}
			return err
		},
		s.backoffStrategies(ctx, s.conf.maxBalanceAttempts.Get(ctx), s.conf.balanceBackoff.Get(ctx))...,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get balance after %d attempt(s)", attempts)
	}
	return balance, nil
}

// run processes destinations through a bounded pool, storing results by
// input index. Once ctx is done no new destinations are started; those
// already running finish with a context that is never cancelled, and the
// rest are reported as failed.
func (s *Service) run(ctx context.Context, destinations []*Destination, process func(context.Context, int, *Destination) *result) []*result {
	concurrency := int(s.conf.concurrency.Get(ctx))
	if concurrency < 1 {
		concurrency = 1
	}

	workCtx := context.WithoutCancel(ctx)
	results := make([]*result, len(destinations))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, d := range destinations {
		i, d := i, d
		g.Go(func() error {
			// Go blocks while the pool is full, so check once a slot frees up.
			if err := ctx.Err(); err != nil {
				results[i] = failed(d, nil, errors.Wrap(err, "not attempted"))
				return nil
			}

			results[i] = process(workCtx, i, d)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) report(action Action, results []*result) *Report {
	r := &Report{
		Action: action,
		Total:  len(results),
	}
	for _, res := range results {
		r.add(res)
	}
	return r
}

// sleep waits for d, or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
