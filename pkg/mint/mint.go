// Package mint creates SPL token mints and mints their initial supply.
package mint

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/spl-airdrop/pkg/solana"
)

const (
	metricsComponent = "mint.Minter"

	createDurationMetricName = "Mint_Create_Duration"
	supplyDurationMetricName = "Mint_Supply_Duration"

	// DefaultSupply is the amount minted when none is configured, in base
	// units.
	DefaultSupply = 100000
)

var (
	// ErrMintExists indicates the mint address already holds an initialized
	// mint.
	ErrMintExists = errors.New("mint already exists")
	// ErrAddressInUse indicates the mint address holds an account that isn't
	// a mint.
	ErrAddressInUse = errors.New("mint address already in use")
	// ErrNotMintAuthority indicates the signing wallet cannot mint new supply.
	ErrNotMintAuthority = errors.New("wallet is not the mint authority")
	// ErrInvalidDecimals indicates more decimals than the tool supports.
	ErrInvalidDecimals = errors.New("invalid decimals")
)

// Minter performs one-shot mint management actions on behalf of a funding
// wallet.
type Minter struct {
	log        *logrus.Entry
	sc         solana.Client
	commitment solana.Commitment
}

// New returns a Minter. Reads and confirmations, other than mint creation
// which always waits for finalization, use commitment.
func New(sc solana.Client, commitment solana.Commitment) *Minter {
	return &Minter{
		log:        logrus.StandardLogger().WithField("type", "mint"),
		sc:         sc,
		commitment: commitment,
	}
}
