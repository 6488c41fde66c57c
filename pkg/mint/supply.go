package mint

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/metrics"
	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// SupplyResult describes a completed MintTo.
type SupplyResult struct {
	Destination ed25519.PublicKey
	Amount      uint64
	Signature   solana.Signature
}

// Supply mints amount base units of mint into owner's associated account,
// creating it if needed. A nil owner mints to the wallet itself, which must
// be the mint authority.
func (m *Minter) Supply(ctx context.Context, wallet, mint, owner *common.Account, amount uint64) (*SupplyResult, error) {
	span := metrics.StartSpan(ctx, metricsComponent, "Supply")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, supplyDurationMetricName, time.Since(start))
	}()

	if owner == nil {
		owner = wallet
	}

	log := m.log.WithFields(logrus.Fields{
		"method": "Supply",
		"wallet": wallet.String(),
		"mint":   mint.String(),
		"owner":  owner.String(),
		"amount": amount,
	})

	res, err := m.supply(ctx, log, wallet, mint, owner, amount)
	if err != nil {
		span.Fail(err)
		log.WithError(err).Warn("failed to mint supply")
		return nil, err
	}
	return res, nil
}

func (m *Minter) supply(ctx context.Context, log *logrus.Entry, wallet, mint, owner *common.Account, amount uint64) (*SupplyResult, error) {
	if !wallet.CanSign() {
		return nil, errors.New("wallet keypair is required")
	}
	if !owner.IsOnCurve() {
		return nil, common.ErrOwnerOffCurve
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tc := token.NewClient(m.sc, mint.Public(), m.commitment)

	state, err := tc.GetMint()
	if err == token.ErrAccountNotFound || err == token.ErrInvalidMint {
		return nil, errors.Wrapf(err, "mint %s", mint.String())
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get mint")
	}
	if !bytes.Equal(state.MintAuthority, wallet.Public()) {
		return nil, ErrNotMintAuthority
	}

	dest, err := tc.GetOrCreateAssociatedAccount(wallet.Signer(), owner.Public())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get or create destination account")
	}
	log = log.WithField("destination", base58.Encode(dest))

	sig, err := tc.MintTo(wallet.Signer(), dest, amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit mint")
	}
	log.WithField("signature", sig.String()).Info("supply minted")

	return &SupplyResult{
		Destination: dest,
		Amount:      amount,
		Signature:   sig,
	}, nil
}
