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
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// CreateResult describes a newly created mint.
type CreateResult struct {
	Mint             *common.Account
	Decimals         byte
	Signature        solana.Signature
	Lamports         uint64
	AssociatedWallet ed25519.PublicKey
}

// Create allocates and initializes mint, funded by wallet, with wallet as the
// mint authority and no freeze authority. The transaction must be finalized
// before the wallet's associated account for the new mint is created.
//
// A rejected transaction returns a *solana.TransactionError, while one that
// was sent but not finalized in time returns solana.ErrConfirmationTimeout.
func (m *Minter) Create(ctx context.Context, wallet, mint *common.Account, decimals byte) (*CreateResult, error) {
	span := metrics.StartSpan(ctx, metricsComponent, "Create")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, createDurationMetricName, time.Since(start))
	}()

	log := m.log.WithFields(logrus.Fields{
		"method":   "Create",
		"wallet":   wallet.String(),
		"mint":     mint.String(),
		"decimals": decimals,
	})

	res, err := m.create(ctx, log, wallet, mint, decimals)
	if err != nil {
		span.Fail(err)
		log.WithError(err).Warn("failed to create mint")
		return nil, err
	}
	return res, nil
}

func (m *Minter) create(ctx context.Context, log *logrus.Entry, wallet, mint *common.Account, decimals byte) (*CreateResult, error) {
	if decimals > token.MaxDecimals {
		return nil, errors.Wrapf(ErrInvalidDecimals, "%d exceeds %d", decimals, token.MaxDecimals)
	}
	if !wallet.CanSign() || !mint.CanSign() {
		return nil, errors.New("wallet and mint keypairs are both required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := m.sc.GetAccountInfo(mint.Public(), m.commitment)
	switch {
	case err == nil:
		var state token.Mint
		if bytes.Equal(existing.Owner, token.ProgramKey) && state.Unmarshal(existing.Data) && state.IsInitialized {
			return nil, ErrMintExists
		}
		return nil, ErrAddressInUse
	case !errors.Is(err, solana.ErrNoAccountInfo):
		return nil, errors.Wrap(err, "failed to check mint address")
	}

	lamports, err := m.sc.GetMinimumBalanceForRentExemption(token.MintAccountSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rent exemption")
	}
	log = log.WithField("lamports", lamports)

	finalized := token.NewClient(m.sc, mint.Public(), solana.CommitmentFinalized)
	sig, err := finalized.Submit(
		wallet.Signer(),
		[]ed25519.PrivateKey{mint.Signer()},
		system.CreateAccount(wallet.Public(), mint.Public(), token.ProgramKey, lamports, token.MintAccountSize),
		token.InitializeMint(mint.Public(), wallet.Public(), nil, decimals),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit mint creation")
	}
	log.WithField("signature", sig.String()).Info("mint created")

	tc := token.NewClient(m.sc, mint.Public(), m.commitment)
	ata, err := tc.GetOrCreateAssociatedAccount(wallet.Signer(), wallet.Public())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get or create wallet associated account")
	}
	log.WithField("associated_account", base58.Encode(ata)).Info("wallet associated account ready")

	return &CreateResult{
		Mint:             mint,
		Decimals:         decimals,
		Signature:        sig,
		Lamports:         lamports,
		AssociatedWallet: ata,
	}, nil
}
