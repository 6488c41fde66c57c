package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

const (
	// LamportsPerSignature is the fee charged to the payer per signature.
	LamportsPerSignature = 5000

	// Two years of rent at the default rate, including account overhead.
	lamportsPerByteYear    = 3480
	accountStorageOverhead = 128
	exemptionThreshold     = 2
)

// Method names usable with InduceErrors.
const (
	MethodGetAccountInfo                    = "getAccountInfo"
	MethodGetBalance                        = "getBalance"
	MethodGetLatestBlockhash                = "getLatestBlockhash"
	MethodGetMinimumBalanceForRentExemption = "getMinimumBalanceForRentExemption"
	MethodGetSignatureStatus                = "getSignatureStatus"
	MethodGetSignatureStatuses              = "getSignatureStatuses"
	MethodGetTokenAccountBalance            = "getTokenAccountBalance"
	MethodSubmitTransaction                 = "sendTransaction"
)

var errDeveloperInduced = errors.New("in memory cluster: developer induced error")

// SubmitHook is invoked for every submitted transaction before it is
// executed. A non-nil error rejects the transaction with that error.
type SubmitHook func(txn solana.Transaction) error

type inducedError struct {
	remaining int
	err       error
}

// Cluster is an in memory solana.Client that executes system, token and
// associated token account instructions against local state.
type Cluster struct {
	mu sync.Mutex

	slot       uint64
	accounts   map[string]solana.AccountInfo
	statuses   map[solana.Signature]*solana.SignatureStatus
	submitted  []solana.Transaction
	induced    map[string]*inducedError
	submitHook SubmitHook
	calls      map[string]int
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{
		slot:     1,
		accounts: make(map[string]solana.AccountInfo),
		statuses: make(map[solana.Signature]*solana.SignatureStatus),
		induced:  make(map[string]*inducedError),
		calls:    make(map[string]int),
	}
}

// Fund credits lamports to the account, creating a system owned account if
// it doesn't exist.
func (c *Cluster) Fund(account ed25519.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.accounts[string(account)]
	if !ok {
		info = solana.AccountInfo{Owner: system.ProgramKey[:]}
	}
	info.Lamports += lamports
	c.accounts[string(account)] = info
}

// SetAccount overwrites the state of an account.
func (c *Cluster) SetAccount(account ed25519.PublicKey, info solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts[string(account)] = cloneInfo(info)
}

// TokenAccount returns the decoded state of a token account, if present.
func (c *Cluster) TokenAccount(account ed25519.PublicKey) (*token.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.accounts[string(account)]
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return nil, false
	}

	var a token.Account
	if !a.Unmarshal(info.Data) {
		return nil, false
	}
	return &a, true
}

// Mint returns the decoded state of a mint, if present.
func (c *Cluster) Mint(mint ed25519.PublicKey) (*token.Mint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.accounts[string(mint)]
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return nil, false
	}

	var m token.Mint
	if !m.Unmarshal(info.Data) || !m.IsInitialized {
		return nil, false
	}
	return &m, true
}

// Submitted returns every transaction that executed successfully, in order.
func (c *Cluster) Submitted() []solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]solana.Transaction(nil), c.submitted...)
}

// Calls returns the number of times method was invoked.
func (c *Cluster) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[method]
}

// InduceErrors makes the next count calls to method fail with err. A nil err
// uses a generic developer induced error.
func (c *Cluster) InduceErrors(method string, count int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		err = errDeveloperInduced
	}
	c.induced[method] = &inducedError{remaining: count, err: err}
}

// StopInducingErrors clears all induced errors.
func (c *Cluster) StopInducingErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.induced = make(map[string]*inducedError)
}

// SetSubmitHook installs a hook that can reject transactions.
func (c *Cluster) SetSubmitHook(hook SubmitHook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submitHook = hook
}

// call records the invocation and returns any induced error. Callers must
// hold mu.
func (c *Cluster) call(method string) error {
	c.calls[method]++

	induced, ok := c.induced[method]
	if !ok || induced.remaining <= 0 {
		return nil
	}

	induced.remaining--
	return induced.err
}

func (c *Cluster) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetAccountInfo); err != nil {
		return solana.AccountInfo{}, err
	}

	info, ok := c.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return cloneInfo(info), nil
}

func (c *Cluster) GetBalance(account ed25519.PublicKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetBalance); err != nil {
		return 0, err
	}

	info, ok := c.accounts[string(account)]
	if !ok {
		return 0, nil
	}
	return info.Lamports, nil
}

func (c *Cluster) GetLatestBlockhash() (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetLatestBlockhash); err != nil {
		return solana.Blockhash{}, err
	}

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], c.slot)
	return solana.Blockhash(sha256.Sum256(b[:])), nil
}

func (c *Cluster) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetMinimumBalanceForRentExemption); err != nil {
		return 0, err
	}

	return rentExemption(size), nil
}

// GetSignatureStatus returns the status of a processed transaction. Every
// executed transaction is immediately finalized, so an unknown signature is
// reported as a confirmation timeout.
func (c *Cluster) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetSignatureStatus); err != nil {
		return nil, err
	}

	s, ok := c.statuses[sig]
	if !ok {
		return nil, errors.Wrapf(solana.ErrConfirmationTimeout, "%s not found", sig)
	}

	status := *s
	if status.ErrorResult != nil {
		return &status, status.ErrorResult
	}
	return &status, nil
}

func (c *Cluster) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetSignatureStatuses); err != nil {
		return nil, err
	}

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if s, ok := c.statuses[sig]; ok {
			status := *s
			statuses[i] = &status
		}
	}
	return statuses, nil
}

func (c *Cluster) GetTokenAccountBalance(account ed25519.PublicKey, _ solana.Commitment) (uint64, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.call(MethodGetTokenAccountBalance); err != nil {
		return 0, 0, err
	}

	info, ok := c.accounts[string(account)]
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return 0, 0, solana.ErrNoBalance
	}

	var a token.Account
	if !a.Unmarshal(info.Data) {
		return 0, 0, solana.ErrNoBalance
	}
	return a.Amount, c.slot, nil
}

// SubmitTransaction executes the transaction atomically. Rejections are
// returned as a *solana.TransactionError, the way a failed preflight is, and
// leave the state untouched.
func (c *Cluster) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig := txn.Signature()
	if err := c.call(MethodSubmitTransaction); err != nil {
		return sig, err
	}

	if c.submitHook != nil {
		if err := c.submitHook(txn); err != nil {
			return sig, err
		}
	}

	if _, ok := c.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}
	if txn.Message.RecentBlockhash == (solana.Blockhash{}) {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}
	if err := txn.Verify(); err != nil {
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	state := newState(c.accounts)
	if err := state.debit(txn.Message.Accounts[0], LamportsPerSignature*uint64(len(txn.Signatures))); err != nil {
		return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}

	for i := range txn.Message.Instructions {
		if err := state.execute(txn.Message, i); err != nil {
			return sig, err
		}
	}

	state.commit(c.accounts)
	c.slot++
	c.statuses[sig] = &solana.SignatureStatus{
		Slot:               c.slot,
		ConfirmationStatus: "finalized",
	}
	c.submitted = append(c.submitted, txn)

	return sig, nil
}

func rentExemption(size uint64) uint64 {
	return (size + accountStorageOverhead) * lamportsPerByteYear * exemptionThreshold
}

func cloneInfo(info solana.AccountInfo) solana.AccountInfo {
	info.Data = append([]byte(nil), info.Data...)
	info.Owner = append(ed25519.PublicKey(nil), info.Owner...)
	return info
}
