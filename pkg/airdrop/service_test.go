package airdrop

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/rate"
	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/memory"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
	"github.com/code-payments/spl-airdrop/pkg/testutil"
)

type testEnv struct {
	ctx     context.Context
	cluster *memory.Cluster
	wallet  *common.Account
	mint    *common.Account
	source  ed25519.PublicKey
}

func setup(t *testing.T, balance uint64) *testEnv {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	mint := testutil.SetupMint(t, cluster, wallet, 0)

	return &testEnv{
		ctx:     context.Background(),
		cluster: cluster,
		wallet:  wallet,
		mint:    mint,
		source:  testutil.SetupAssociatedAccount(t, cluster, wallet, mint, balance),
	}
}

func (e *testEnv) newService(t *testing.T, overrides *testOverrides) *Service {
	s, err := New(e.cluster, solana.CommitmentConfirmed, e.wallet, e.mint, withManualTestOverrides(overrides))
	require.NoError(t, err)
	return s
}

func (e *testEnv) destinations(t *testing.T, counts ...uint64) []*Destination {
	destinations := make([]*Destination, len(counts))
	for i, count := range counts {
		destinations[i] = &Destination{
			Owner: testutil.NewRandomAccount(t),
			Count: count,
		}
	}
	return destinations
}

func (e *testEnv) associatedAccount(t *testing.T, owner *common.Account) ed25519.PublicKey {
	addr, err := token.GetAssociatedAccount(owner.Public(), e.mint.Public())
	require.NoError(t, err)
	return addr
}

// balanceOf returns the owner's token balance, and whether the owner's
// associated account exists.
func (e *testEnv) balanceOf(t *testing.T, owner *common.Account) (uint64, bool) {
	account, ok := e.cluster.TokenAccount(e.associatedAccount(t, owner))
	if !ok {
		return 0, false
	}
	return account.Amount, true
}

// rejectTransfersTo fails every transfer into the owners' associated
// accounts, returning a func that reports how many were attempted.
func (e *testEnv) rejectTransfersTo(t *testing.T, owners ...*common.Account) func() int {
	var mu sync.Mutex
	var attempts int

	rejected := make(map[string]struct{})
	for _, owner := range owners {
		rejected[string(e.associatedAccount(t, owner))] = struct{}{}
	}

	e.cluster.SetSubmitHook(func(txn solana.Transaction) error {
		transfer, err := token.DecompileTransfer(txn.Message, 0)
		if err != nil {
			return nil
		}
		if _, ok := rejected[string(transfer.Destination)]; !ok {
			return nil
		}

		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("node is behind")
	})

	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return attempts
	}
}

func TestNew_Validation(t *testing.T) {
	env := setup(t, 0)

	publicOnly, err := common.NewAccountFromPublicKeyBytes(env.wallet.Public())
	require.NoError(t, err)

	_, err = New(env.cluster, solana.CommitmentConfirmed, publicOnly, env.mint, WithDefaultConfigs())
	assert.Error(t, err)
	_, err = New(env.cluster, solana.CommitmentConfirmed, env.wallet, nil, WithDefaultConfigs())
	assert.Error(t, err)
}

func TestAirdrop(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})
	destinations := env.destinations(t, 10, 20, 30)

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, ActionAirdrop, report.Action)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.False(t, report.HasFailures())

	for _, d := range destinations {
		balance, ok := env.balanceOf(t, d.Owner)
		require.True(t, ok)
		assert.Equal(t, d.Count, balance)
	}

	balance, ok := env.balanceOf(t, env.wallet)
	require.True(t, ok)
	assert.EqualValues(t, 40, balance)

	// One account creation and one transfer per destination
	assert.Len(t, env.cluster.Submitted(), 6)
}

func TestAirdrop_ExistingAccountsAndDuplicates(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})

	owner := testutil.NewRandomAccount(t)
	testutil.SetupAssociatedAccount(t, env.cluster, owner, env.mint, 5)

	report, err := s.Airdrop(env.ctx, []*Destination{
		{Owner: owner, Count: 10},
		{Owner: owner, Count: 15},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	balance, _ := env.balanceOf(t, owner)
	assert.EqualValues(t, 30, balance)
	assert.Len(t, env.cluster.Submitted(), 2)
}

func TestAirdrop_ConcurrentDuplicatesCreateOnce(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{concurrency: 4})

	owner := testutil.NewRandomAccount(t)
	destinations := make([]*Destination, 4)
	for i := range destinations {
		destinations[i] = &Destination{Owner: owner, Count: 5}
	}

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)

	balance, _ := env.balanceOf(t, owner)
	assert.EqualValues(t, 20, balance)

	// One account creation, then a transfer per entry
	assert.Len(t, env.cluster.Submitted(), 5)
}

func TestAirdrop_CreatesSourceAccount(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)
	env := &testEnv{
		ctx:     context.Background(),
		cluster: cluster,
		wallet:  wallet,
		mint:    testutil.SetupMint(t, cluster, wallet, 0),
	}
	s := env.newService(t, &testOverrides{})

	report, err := s.Airdrop(env.ctx, env.destinations(t, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	_, ok := env.balanceOf(t, wallet)
	assert.True(t, ok)

	_, err = s.Airdrop(env.ctx, env.destinations(t, 1))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestAirdrop_InsufficientBalance(t *testing.T) {
	env := setup(t, 50)
	s := env.newService(t, &testOverrides{})
	destinations := env.destinations(t, 30, 21)

	report, err := s.Airdrop(env.ctx, destinations)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	assert.Empty(t, env.cluster.Submitted())
	for _, d := range destinations {
		_, ok := env.balanceOf(t, d.Owner)
		assert.False(t, ok)
	}

	_, err = s.Airdrop(env.ctx, env.destinations(t, ^uint64(0), 1))
	assert.Equal(t, ErrTotalOverflow, err)
}

func TestAirdrop_ResolveRetries(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{maxResolveAttempts: 5})
	destinations := env.destinations(t, 1, 2)

	env.cluster.InduceErrors(memory.MethodGetAccountInfo, 3, nil)

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	for _, d := range destinations {
		balance, _ := env.balanceOf(t, d.Owner)
		assert.Equal(t, d.Count, balance)
	}
}

func TestAirdrop_ResolveExhausted(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{maxResolveAttempts: 3})
	destinations := env.destinations(t, 1, 2, 3)
	bad := destinations[1]

	var mu sync.Mutex
	var attempts int
	env.cluster.SetSubmitHook(func(txn solana.Transaction) error {
		create, err := token.DecompileAnyCreateAssociatedAccount(txn.Message, 0)
		if err != nil || !bytes.Equal(create.Owner, bad.Owner.Public()) {
			return nil
		}

		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("blockhash expired")
	})

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 1)

	failure := report.Failed[0]
	assert.Equal(t, bad, failure.Destination)
	assert.EqualValues(t, 2, failure.Expected)
	assert.Nil(t, failure.Actual)
	assert.Contains(t, failure.Error, "after 3 attempt(s)")
	assert.Equal(t, 3, attempts)

	_, ok := env.balanceOf(t, bad.Owner)
	assert.False(t, ok)

	balance, _ := env.balanceOf(t, env.wallet)
	assert.EqualValues(t, 96, balance)
}

func TestAirdrop_TransferFailure(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{transferFailureDelay: 20 * time.Millisecond})
	destinations := env.destinations(t, 1, 2, 3)
	bad := destinations[0]

	transferAttempts := env.rejectTransfersTo(t, bad.Owner)

	start := time.Now()
	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)

	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad, report.Failed[0].Destination)
	assert.Contains(t, report.Failed[0].Error, "node is behind")

	// Transfers are never retried
	assert.Equal(t, 1, transferAttempts())

	// The account was still created
	balance, ok := env.balanceOf(t, bad.Owner)
	assert.True(t, ok)
	assert.Zero(t, balance)
}

func TestAirdrop_OffCurveOwner(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})

	pda, err := solana.FindProgramAddress(token.ProgramKey, []byte("vault"))
	require.NoError(t, err)
	offCurve, err := common.NewAccountFromPublicKeyBytes(pda)
	require.NoError(t, err)

	destinations := env.destinations(t, 5)
	destinations = append(destinations, &Destination{Owner: offCurve, Count: 5})

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, offCurve, report.Failed[0].Destination.Owner)
	assert.Equal(t, common.ErrOwnerOffCurve.Error(), report.Failed[0].Error)

	assert.Len(t, env.cluster.Submitted(), 2)
}

func TestAirdrop_ConcurrentResultsAreOrdered(t *testing.T) {
	env := setup(t, 1000)
	s := env.newService(t, &testOverrides{
		concurrency:  4,
		rpcRateLimit: 10000,
	})

	counts := make([]uint64, 12)
	for i := range counts {
		counts[i] = uint64(i + 1)
	}
	destinations := env.destinations(t, counts...)
	env.rejectTransfersTo(t, destinations[2].Owner, destinations[5].Owner, destinations[11].Owner)

	report, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Total)
	assert.Equal(t, 9, report.Succeeded)
	assert.Equal(t, []*Destination{destinations[2], destinations[5], destinations[11]}, report.FailedDestinations())

	for i, d := range destinations {
		balance, ok := env.balanceOf(t, d.Owner)
		require.True(t, ok)
		if i == 2 || i == 5 || i == 11 {
			assert.Zero(t, balance)
		} else {
			assert.Equal(t, d.Count, balance)
		}
	}
}

func TestAirdrop_Cancellation(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})
	destinations := env.destinations(t, 1, 2, 3)

	ctx, cancel := context.WithCancel(env.ctx)
	defer cancel()

	// Cancel while the first transfer is in flight
	env.cluster.SetSubmitHook(func(txn solana.Transaction) error {
		if _, err := token.DecompileTransfer(txn.Message, 0); err == nil {
			cancel()
		}
		return nil
	})

	report, err := s.Airdrop(ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, destinations[1:], report.FailedDestinations())
	for _, f := range report.Failed {
		assert.Contains(t, f.Error, "not attempted")
	}

	balance, _ := env.balanceOf(t, destinations[0].Owner)
	assert.EqualValues(t, 1, balance)
	_, ok := env.balanceOf(t, destinations[1].Owner)
	assert.False(t, ok)

	_, err = s.Airdrop(ctx, destinations)
	assert.Equal(t, context.Canceled, err)
}

func TestVerify(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})
	destinations := env.destinations(t, 10, 20, 30)

	_, err := s.Airdrop(env.ctx, destinations)
	require.NoError(t, err)
	submitted := len(env.cluster.Submitted())

	report, err := s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, ActionVerify, report.Action)
	assert.Equal(t, 3, report.Succeeded)
	assert.False(t, report.HasFailures())

	// Short by one, and over by one
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[1].Owner, env.mint, 19)
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[2].Owner, env.mint, 31)

	report, err = s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 1)

	failure := report.Failed[0]
	assert.Equal(t, destinations[1], failure.Destination)
	assert.EqualValues(t, 20, failure.Expected)
	require.NotNil(t, failure.Actual)
	assert.EqualValues(t, 19, *failure.Actual)
	assert.Empty(t, failure.Error)

	// Verification never transfers
	assert.Len(t, env.cluster.Submitted(), submitted)
}

func TestVerify_Idempotent(t *testing.T) {
	env := setup(t, 100)
	s := env.newService(t, &testOverrides{})

	// Short, exact, over, and missing.
	destinations := env.destinations(t, 5, 7, 8, 4)
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[0].Owner, env.mint, 3)
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[1].Owner, env.mint, 7)
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[2].Owner, env.mint, 10)

	first, err := s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Succeeded)
	require.Len(t, first.Failed, 2)
	assert.Equal(t, destinations[0], first.Failed[0].Destination)
	assert.Equal(t, destinations[3], first.Failed[1].Destination)

	// Only the missing account was created.
	submitted := len(env.cluster.Submitted())
	assert.Equal(t, 1, submitted)

	for i := 0; i < 2; i++ {
		again, err := s.Verify(env.ctx, destinations)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Len(t, env.cluster.Submitted(), submitted)
	}

	for i, expected := range []uint64{3, 7, 10, 0} {
		balance, ok := env.balanceOf(t, destinations[i].Owner)
		require.True(t, ok)
		assert.Equal(t, expected, balance)
	}
}

func TestVerify_MissingAccounts(t *testing.T) {
	env := setup(t, 0)
	destinations := env.destinations(t, 5, 0)

	// Without creation, nothing is submitted
	s := env.newService(t, &testOverrides{noCreate: true})
	report, err := s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, destinations[0], report.Failed[0].Destination)
	require.NotNil(t, report.Failed[0].Actual)
	assert.Zero(t, *report.Failed[0].Actual)
	assert.Empty(t, env.cluster.Submitted())

	// By default, missing accounts are created
	s = env.newService(t, &testOverrides{})
	report, err = s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.NotNil(t, report.Failed[0].Actual)
	assert.Zero(t, *report.Failed[0].Actual)

	for _, d := range destinations {
		_, ok := env.balanceOf(t, d.Owner)
		assert.True(t, ok)
	}
	assert.Len(t, env.cluster.Submitted(), 2)
}

func TestVerify_BalanceRetries(t *testing.T) {
	env := setup(t, 0)
	s := env.newService(t, &testOverrides{maxBalanceAttempts: 3})

	destinations := env.destinations(t, 7)
	testutil.SetupAssociatedAccount(t, env.cluster, destinations[0].Owner, env.mint, 7)

	env.cluster.InduceErrors(memory.MethodGetTokenAccountBalance, 2, nil)
	report, err := s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 3, env.cluster.Calls(memory.MethodGetTokenAccountBalance))

	env.cluster.InduceErrors(memory.MethodGetTokenAccountBalance, 3, nil)
	report, err = s.Verify(env.ctx, destinations)
	require.NoError(t, err)
	assert.Zero(t, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Nil(t, report.Failed[0].Actual)
	assert.Contains(t, report.Failed[0].Error, "after 3 attempt(s)")
	assert.Equal(t, 6, env.cluster.Calls(memory.MethodGetTokenAccountBalance))
}

func TestLimitedClient(t *testing.T) {
	cluster := memory.NewCluster()
	wallet := testutil.SetupFundedWallet(t, cluster)

	sc := newLimitedClient(context.Background(), cluster, rate.NewRPCLimiter(1000))
	balance, err := sc.GetBalance(wallet.Public())
	require.NoError(t, err)
	assert.EqualValues(t, testutil.DefaultWalletLamports, balance)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, limiter := range []rate.Limiter{rate.NewRPCLimiter(0), rate.NewRPCLimiter(1)} {
		sc = newLimitedClient(ctx, cluster, limiter)

		_, err = sc.GetBalance(wallet.Public())
		assert.Equal(t, context.Canceled, err)
		_, err = sc.GetAccountInfo(wallet.Public(), solana.CommitmentConfirmed)
		assert.Equal(t, context.Canceled, err)
		_, err = sc.GetLatestBlockhash()
		assert.Equal(t, context.Canceled, err)
		_, _, err = sc.GetTokenAccountBalance(wallet.Public(), solana.CommitmentConfirmed)
		assert.Equal(t, context.Canceled, err)
	}
	assert.Equal(t, 1, cluster.Calls(memory.MethodGetBalance))
}
