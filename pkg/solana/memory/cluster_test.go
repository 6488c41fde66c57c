package memory_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/memory"
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
	"github.com/code-payments/spl-airdrop/pkg/testutil"
)

func submit(t *testing.T, cluster *memory.Cluster, payer *common.Account, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	bh, err := cluster.GetLatestBlockhash()
	require.NoError(t, err)

	txn := solana.NewTransaction(payer.Public(), instructions...)
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(append([]ed25519.PrivateKey{payer.Signer()}, signers...)...))

	return cluster.SubmitTransaction(txn, solana.CommitmentConfirmed)
}

func createMint(t *testing.T, cluster *memory.Cluster, wallet, mint *common.Account) error {
	lamports, err := cluster.GetMinimumBalanceForRentExemption(token.MintAccountSize)
	require.NoError(t, err)

	_, err = submit(t, cluster, wallet, []ed25519.PrivateKey{mint.Signer()},
		system.CreateAccount(wallet.Public(), mint.Public(), token.ProgramKey, lamports, token.MintAccountSize),
		token.InitializeMint(mint.Public(), wallet.Public(), nil, 6),
	)
	return err
}

func TestCluster_CreateMint(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.NewRandomAccount(t)

	require.NoError(t, createMint(t, cluster, wallet, mint))

	state, ok := cluster.Mint(mint.Public())
	require.True(t, ok)
	assert.EqualValues(t, wallet.Public(), state.MintAuthority)
	assert.Nil(t, state.FreezeAuthority)
	assert.EqualValues(t, 6, state.Decimals)
	assert.Zero(t, state.Supply)

	rent, err := cluster.GetMinimumBalanceForRentExemption(token.MintAccountSize)
	require.NoError(t, err)
	balance, err := cluster.GetBalance(wallet.Public())
	require.NoError(t, err)
	assert.EqualValues(t, testutil.DefaultWalletLamports-rent-2*memory.LamportsPerSignature, balance)

	sig := cluster.Submitted()[0].Signature()
	status, err := cluster.GetSignatureStatus(sig, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, status.Finalized())

	// The address is taken now
	err = createMint(t, cluster, wallet, mint)
	code, ok := solana.GetCustomError(err)
	require.True(t, ok)
	assert.EqualValues(t, 0, code)
	assert.Len(t, cluster.Submitted(), 1)
}

func TestCluster_AtomicFailure(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.NewRandomAccount(t)

	before, err := cluster.GetBalance(wallet.Public())
	require.NoError(t, err)

	// Second instruction fails since the account isn't big enough for a mint
	_, err = submit(t, cluster, wallet, []ed25519.PrivateKey{mint.Signer()},
		system.CreateAccount(wallet.Public(), mint.Public(), token.ProgramKey, 1_000_000, 10),
		token.InitializeMint(mint.Public(), wallet.Public(), nil, 0),
	)
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, 1, txErr.InstructionError().Index)

	_, err = cluster.GetAccountInfo(mint.Public(), solana.CommitmentConfirmed)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	after, err := cluster.GetBalance(wallet.Public())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCluster_AssociatedAccounts(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.SetupMint(t, cluster, wallet, 0)
	owner := testutil.NewRandomAccount(t)

	// Empty data is the legacy create, which fails on an existing account.
	create, addr, err := token.CreateAssociatedTokenAccountIdempotent(wallet.Public(), owner.Public(), mint.Public())
	require.NoError(t, err)
	create.Data = nil
	_, err = submit(t, cluster, wallet, nil, create)
	require.NoError(t, err)

	account, ok := cluster.TokenAccount(addr)
	require.True(t, ok)
	assert.EqualValues(t, owner.Public(), account.Owner)
	assert.Equal(t, token.AccountStateInitialized, account.State)

	// Non-idempotent create fails on an existing account
	_, err = submit(t, cluster, wallet, nil, create)
	assert.True(t, solana.IsTransactionError(err))

	// Idempotent create succeeds on an existing account
	idempotent, _, err := token.CreateAssociatedTokenAccountIdempotent(wallet.Public(), owner.Public(), mint.Public())
	require.NoError(t, err)
	_, err = submit(t, cluster, wallet, nil, idempotent)
	assert.NoError(t, err)

	// Creation requires an initialized mint
	create, _, err = token.CreateAssociatedTokenAccountIdempotent(wallet.Public(), owner.Public(), testutil.NewRandomAccount(t).Public())
	require.NoError(t, err)
	_, err = submit(t, cluster, wallet, nil, create)
	code, ok := solana.GetCustomError(err)
	require.True(t, ok)
	assert.Equal(t, token.ErrorInvalidMint, code)
}

func TestCluster_TransferErrors(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.SetupMint(t, cluster, wallet, 0)
	other := testutil.SetupMint(t, cluster, wallet, 0)
	recipient := testutil.NewRandomAccount(t)

	source := testutil.SetupAssociatedAccount(t, cluster, wallet, mint, 100)
	dest := testutil.SetupAssociatedAccount(t, cluster, recipient, mint, 0)
	otherDest := testutil.SetupAssociatedAccount(t, cluster, recipient, other, 0)

	for _, tc := range []struct {
		name        string
		instruction solana.Instruction
		expected    solana.CustomError
	}{
		{"insufficient funds", token.Transfer(source, dest, wallet.Public(), 101), token.ErrorInsufficientFunds},
		{"mint mismatch", token.Transfer(source, otherDest, wallet.Public(), 1), token.ErrorMintMismatch},
	} {
		_, err := submit(t, cluster, wallet, nil, tc.instruction)
		code, ok := solana.GetCustomError(err)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.expected, code, tc.name)
	}

	// Wrong owner, signed by the recipient
	funded := testutil.SetupFundedWallet(t, cluster)
	_, err := submit(t, cluster, funded, nil, token.Transfer(source, dest, funded.Public(), 1))
	code, ok := solana.GetCustomError(err)
	require.True(t, ok)
	assert.Equal(t, token.ErrorOwnerMismatch, code)

	// Missing destination
	_, err = submit(t, cluster, wallet, nil, token.Transfer(source, testutil.NewRandomAccount(t).Public(), wallet.Public(), 1))
	assert.True(t, solana.IsTransactionError(err))
	_, ok = solana.GetCustomError(err)
	assert.False(t, ok)

	balance, _, err := cluster.GetTokenAccountBalance(source, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)

	_, _, err = cluster.GetTokenAccountBalance(wallet.Public(), solana.CommitmentConfirmed)
	assert.Equal(t, solana.ErrNoBalance, err)
}

func TestCluster_SystemTransfer(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	recipient := testutil.NewRandomAccount(t)

	_, err := submit(t, cluster, wallet, nil, system.Transfer(wallet.Public(), recipient.Public(), 5000))
	require.NoError(t, err)

	balance, err := cluster.GetBalance(recipient.Public())
	require.NoError(t, err)
	assert.EqualValues(t, 5000, balance)

	info, err := cluster.GetAccountInfo(recipient.Public(), solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, system.ProgramKey[:], info.Owner)

	balance, err = cluster.GetBalance(wallet.Public())
	require.NoError(t, err)
	assert.EqualValues(t, testutil.DefaultWalletLamports-5000-memory.LamportsPerSignature, balance)

	// The recipient pays its own fee, leaving too little to send it all back.
	_, err = submit(t, cluster, recipient, nil, system.Transfer(recipient.Public(), wallet.Public(), 5000))
	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, solana.InstructionErrorInsufficientFunds, txErr.InstructionError().ErrorKey())
}

func TestCluster_UnknownTokenCommand(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)

	_, err := submit(t, cluster, wallet, nil, solana.NewInstruction(token.ProgramKey, []byte{byte(token.CommandApprove)}))
	code, ok := solana.GetCustomError(err)
	require.True(t, ok)
	assert.Equal(t, token.ErrorInvalidInstruction, code)
}

func TestCluster_TransactionChecks(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	broke := testutil.NewRandomAccount(t)
	mint := testutil.SetupMint(t, cluster, wallet, 0)
	source := testutil.SetupAssociatedAccount(t, cluster, wallet, mint, 100)

	// No fee payer balance
	_, err := submit(t, cluster, broke, nil, token.Transfer(source, source, broke.Public(), 1))
	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, solana.TransactionErrorInsufficientFundsForFee, txErr.ErrorKey())

	// Missing blockhash
	txn := solana.NewTransaction(wallet.Public(), token.Transfer(source, source, wallet.Public(), 1))
	require.NoError(t, txn.Sign(wallet.Signer()))
	_, err = cluster.SubmitTransaction(txn, solana.CommitmentConfirmed)
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, solana.TransactionErrorBlockhashNotFound, txErr.ErrorKey())

	// Duplicate
	sig, err := submit(t, cluster, wallet, nil, token.Transfer(source, source, wallet.Public(), 1))
	require.NoError(t, err)
	dup := cluster.Submitted()[0]
	_, err = cluster.SubmitTransaction(dup, solana.CommitmentConfirmed)
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, solana.TransactionErrorDuplicateSignature, txErr.ErrorKey())
	assert.Equal(t, sig, dup.Signature())

	// Unknown program
	_, err = submit(t, cluster, wallet, nil, solana.NewInstruction(testutil.NewRandomAccount(t).Public(), []byte{1}))
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, solana.InstructionErrorIncorrectProgramID, txErr.InstructionError().ErrorKey())
}

func TestCluster_InducedErrors(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)

	cluster.InduceErrors(memory.MethodGetBalance, 2, nil)
	for i := 0; i < 2; i++ {
		_, err := cluster.GetBalance(wallet.Public())
		assert.Error(t, err)
	}
	_, err := cluster.GetBalance(wallet.Public())
	assert.NoError(t, err)
	assert.Equal(t, 3, cluster.Calls(memory.MethodGetBalance))

	induced := errors.New("rpc unavailable")
	cluster.InduceErrors(memory.MethodGetAccountInfo, 10, induced)
	_, err = cluster.GetAccountInfo(wallet.Public(), solana.CommitmentConfirmed)
	assert.Equal(t, induced, err)

	cluster.StopInducingErrors()
	_, err = cluster.GetAccountInfo(wallet.Public(), solana.CommitmentConfirmed)
	assert.NoError(t, err)
}

func TestCluster_SubmitHook(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.SetupMint(t, cluster, wallet, 0)
	source := testutil.SetupAssociatedAccount(t, cluster, wallet, mint, 100)

	rejected := errors.New("rejected")
	cluster.SetSubmitHook(func(txn solana.Transaction) error {
		transfer, err := token.DecompileTransfer(txn.Message, 0)
		if err == nil && transfer.Amount == 13 {
			return rejected
		}
		return nil
	})

	_, err := submit(t, cluster, wallet, nil, token.Transfer(source, source, wallet.Public(), 13))
	assert.Equal(t, rejected, err)
	_, err = submit(t, cluster, wallet, nil, token.Transfer(source, source, wallet.Public(), 12))
	assert.NoError(t, err)

	// Signature lookups for transactions that never landed time out
	_, err = cluster.GetSignatureStatus(solana.Signature{1}, solana.CommitmentConfirmed)
	assert.True(t, errors.Is(err, solana.ErrConfirmationTimeout))

	statuses, err := cluster.GetSignatureStatuses([]solana.Signature{{1}, cluster.Submitted()[0].Signature()})
	require.NoError(t, err)
	assert.Nil(t, statuses[0])
	assert.NotNil(t, statuses[1])
}
