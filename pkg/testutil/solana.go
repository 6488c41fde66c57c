package testutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/memory"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// DefaultWalletLamports is enough SOL for a wallet to create a mint and a
// few hundred associated accounts.
const DefaultWalletLamports = 1_000_000_000

func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	_, p, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return p
}

func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		p, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = p
	}
	return keys
}

func NewRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)

	return account
}

// SetupFundedWallet returns a random account holding DefaultWalletLamports
// on the cluster.
func SetupFundedWallet(t *testing.T, cluster *memory.Cluster) *common.Account {
	account := NewRandomAccount(t)
	cluster.Fund(account.Public(), DefaultWalletLamports)
	return account
}

// SetupMint writes an initialized mint controlled by authority directly into
// the cluster's state.
func SetupMint(t *testing.T, cluster *memory.Cluster, authority *common.Account, decimals byte) *common.Account {
	mint := NewRandomAccount(t)

	state := token.Mint{
		MintAuthority: authority.Public(),
		Decimals:      decimals,
		IsInitialized: true,
	}
	cluster.SetAccount(mint.Public(), solana.AccountInfo{
		Data:     state.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: 1_461_600,
	})
	return mint
}

// SetupAssociatedAccount writes owner's associated account for mint, holding
// amount, directly into the cluster's state and returns its address.
func SetupAssociatedAccount(t *testing.T, cluster *memory.Cluster, owner, mint *common.Account, amount uint64) ed25519.PublicKey {
	addr, err := token.GetAssociatedAccount(owner.Public(), mint.Public())
	require.NoError(t, err)

	state := token.Account{
		Mint:   mint.Public(),
		Owner:  owner.Public(),
		Amount: amount,
		State:  token.AccountStateInitialized,
	}
	cluster.SetAccount(addr, solana.AccountInfo{
		Data:     state.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: 2_039_280,
	})
	return addr
}
