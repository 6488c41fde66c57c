package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/spl-airdrop/pkg/retry"
	"github.com/code-payments/spl-airdrop/pkg/retry/backoff"
)

const (
	// 160 ticks per second at 64 ticks per slot. PollRate samples each slot
	// about twice.
	slotDuration = 400 * time.Millisecond
	PollRate     = slotDuration / 2

	rpcCodeInvalidParams = -32602
	rpcCodeNodeUnhealthy = -32005

	// Long enough for finalization, which takes ~32 slots.
	defaultConfirmationTimeout = 60 * time.Second

	// Cached blockhashes are reused for 1.6s to 2.4s.
	blockhashTTL = 2 * time.Second
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrNoBalance         = errors.New("no balance")

	// ErrConfirmationTimeout means a transaction was submitted but didn't
	// reach the requested commitment in time. It may still land.
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")

	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

// AccountInfo is a raw on-chain account.
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

// Client is the subset of the Solana JSON RPC API used to mint and transfer
// tokens.
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetLatestBlockhash() (Blockhash, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetSignatureStatus(Signature, Commitment) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	GetTokenAccountBalance(ed25519.PublicKey, Commitment) (uint64, uint64, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

// Gated is a Client that can hold every HTTP request it sends, including
// transient failure retries and confirmation polls, until a gate returns.
type Gated interface {
	Client

	// WithGate returns a Client sharing this one's connection and caches
	// that calls gate before each request. A gate error fails the request.
	WithGate(gate func() error) Client
}

type client struct {
	log     *logrus.Entry
	rpc     jsonrpc.RPCClient
	retrier retry.Retrier
	gate    func() error

	confirmationTimeout time.Duration

	blockhash *blockhashCache
}

type blockhashCache struct {
	sync.RWMutex
	hash    Blockhash
	fetched time.Time
}

type Option func(*client)

// WithConfirmationTimeout bounds how long GetSignatureStatus polls for.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.confirmationTimeout = d
		}
	}
}

// WithRetrier overrides the retrier used for transient RPC failures.
func WithRetrier(r retry.Retrier) Option {
	return func(c *client) {
		c.retrier = r
	}
}

func New(endpoint string, opts ...Option) Client {
	return NewWithRPCOptions(endpoint, nil, opts...)
}

// NewWithRPCOptions is New with control over the underlying HTTP client and
// headers.
func NewWithRPCOptions(endpoint string, rpcOpts *jsonrpc.RPCClientOpts, opts ...Option) Client {
	c := &client{
		log: logrus.StandardLogger().WithField("type", "solana/client"),
		rpc: jsonrpc.NewClientWithOpts(endpoint, rpcOpts),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(3),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
		confirmationTimeout: defaultConfirmationTimeout,
		blockhash:           &blockhashCache{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *client) WithGate(gate func() error) Client {
	gated := *c
	gated.gate = gate
	return &gated
}

// call invokes method, retrying rate limits and node failures. Every attempt
// passes the gate first.
func (c *client) call(out any, method string, params ...any) error {
	_, err := c.retrier.Retry(func() error {
		if c.gate != nil {
			if err := c.gate(); err != nil {
				return err
			}
		}

		err := c.rpc.CallFor(out, method, params...)
		if err == nil {
			return nil
		}
		return c.classify(method, err)
	})
	return err
}

// classify maps transient failures onto errRateLimited or errServiceError.
// Anything else, including *jsonrpc.RPCError, is returned as is.
func (c *client) classify(method string, err error) error {
	var code int
	var rpcErr *jsonrpc.RPCError
	var httpErr *jsonrpc.HTTPError
	switch {
	case errors.As(err, &rpcErr):
		code = rpcErr.Code
	case errors.As(err, &httpErr):
		code = httpErr.Code
	default:
		return err
	}

	switch {
	case code == http.StatusTooManyRequests:
		c.log.WithField("method", method).Warn("rate limited")
		return errRateLimited
	case code >= http.StatusInternalServerError, code == rpcCodeNodeUnhealthy:
		return errServiceError
	default:
		return err
	}
}

func isInvalidParams(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpcCodeInvalidParams
}

func (c *client) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	var lamports uint64
	if err := c.call(&lamports, "getMinimumBalanceForRentExemption", size); err != nil {
		return 0, errors.Wrap(err, "getMinimumBalanceForRentExemption() failed to send request")
	}
	return lamports, nil
}

// GetLatestBlockhash returns a recently fetched blockhash if there is one.
// The reuse window is randomized so concurrent senders don't refresh in
// lockstep.
func (c *client) GetLatestBlockhash() (Blockhash, error) {
	ttl := time.Duration(float64(blockhashTTL) * (0.8 + 0.4*rand.Float64()))

	c.blockhash.RLock()
	cached, fetched := c.blockhash.hash, c.blockhash.fetched
	c.blockhash.RUnlock()
	if cached != (Blockhash{}) && time.Since(fetched) < ttl {
		return cached, nil
	}

	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(&resp, "getLatestBlockhash"); err != nil {
		return Blockhash{}, errors.Wrap(err, "getLatestBlockhash() failed to send request")
	}

	decoded, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(decoded) != len(Blockhash{}) {
		return Blockhash{}, errors.Errorf("invalid blockhash %q in response", resp.Value.Blockhash)
	}

	var hash Blockhash
	copy(hash[:], decoded)

	c.blockhash.Lock()
	c.blockhash.hash, c.blockhash.fetched = hash, time.Now()
	c.blockhash.Unlock()

	return hash, nil
}

// GetBalance returns the account's lamports at processed commitment.
func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp struct {
		Value *uint64 `json:"value"`
	}
	if err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed); err != nil {
		if isInvalidParams(err) {
			return 0, ErrNoBalance
		}
		return 0, errors.Wrap(err, "getBalance() failed to send request")
	}

	if resp.Value == nil {
		return 0, errors.New("missing value in response")
	}
	return *resp.Value, nil
}

// GetTokenAccountBalance returns the balance of a token account in base
// units, along with the slot it was observed at.
func (c *client) GetTokenAccountBalance(account ed25519.PublicKey, commitment Commitment) (uint64, uint64, error) {
	var resp struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.call(&resp, "getTokenAccountBalance", base58.Encode(account), commitment); err != nil {
		if isInvalidParams(err) {
			return 0, 0, ErrNoBalance
		}
		return 0, 0, errors.Wrap(err, "getTokenAccountBalance() failed to send request")
	}

	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, errors.Errorf("invalid amount %q in response", resp.Value.Amount)
	}
	return amount, resp.Context.Slot, nil
}

// SubmitTransaction sends the transaction with preflight simulation at the
// provided commitment. A preflight rejection is returned as a
// *TransactionError.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signature()

	encoded := txn.Marshal()
	if len(encoded) > MaxTransactionSize {
		return sig, ErrTransactionTooLarge
	}

	config := map[string]any{
		"skipPreflight":       false,
		"preflightCommitment": commitment.Commitment,
	}

	var ignored string
	err := c.call(&ignored, "sendTransaction", base58.Encode(encoded), config)
	if err == nil {
		return sig, nil
	}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return sig, errors.Wrap(err, "sendTransaction() failed to send request")
	}

	txErr, parseErr := ParseRPCError(rpcErr)
	if parseErr != nil || txErr == nil {
		return sig, errors.Wrap(err, "sendTransaction() rejected")
	}

	c.log.WithFields(logrus.Fields{
		"method":    "SubmitTransaction",
		"signature": sig.String(),
	}).WithError(txErr).Debug("transaction failed preflight")
	return sig, txErr
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (AccountInfo, error) {
	var resp struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"`
			Executable bool     `json:"executable"`
		} `json:"value"`
	}
	config := map[string]any{
		"commitment": commitment.Commitment,
		"encoding":   "base64",
	}
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), config); err != nil {
		return AccountInfo{}, errors.Wrap(err, "getAccountInfo() failed to send request")
	}

	v := resp.Value
	if v == nil {
		return AccountInfo{}, ErrNoAccountInfo
	}
	if len(v.Data) == 0 {
		return AccountInfo{}, errors.New("missing account data in response")
	}

	owner, err := base58.Decode(v.Owner)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid base58 encoded owner")
	}
	data, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid base64 encoded data")
	}

	return AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   v.Lamports,
		Executable: v.Executable,
	}, nil
}

var errNotYetReached = errors.New("commitment not yet reached")

// GetSignatureStatus polls until the transaction reaches the commitment, or
// the confirmation timeout elapses.
func (c *client) GetSignatureStatus(sig Signature, commitment Commitment) (*SignatureStatus, error) {
	return PollSignatureStatus(c, sig, commitment, c.confirmationTimeout)
}

// StatusReader reads transaction statuses with a single request.
type StatusReader interface {
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
}

// PollSignatureStatus reads sig's status from r every PollRate until it
// reaches the commitment or timeout elapses. Each poll is one
// GetSignatureStatuses call, so throttling r throttles the poll. A
// transaction that landed but failed is returned as a *TransactionError,
// which is distinct from ErrConfirmationTimeout.
func PollSignatureStatus(r StatusReader, sig Signature, commitment Commitment, timeout time.Duration) (*SignatureStatus, error) {
	polls := max(uint(timeout/PollRate), 1)

	var status *SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := r.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				return ErrSignatureNotFound
			}

			status = statuses[0]
			switch {
			case status == nil:
				return ErrSignatureNotFound
			case status.ErrorResult != nil:
				return status.ErrorResult
			case !status.Reached(commitment):
				return errNotYetReached
			default:
				return nil
			}
		},
		retry.RetriableErrors(ErrSignatureNotFound, errNotYetReached),
		retry.Limit(polls),
		retry.Backoff(backoff.Constant(PollRate), PollRate),
	)

	if errors.Is(err, ErrSignatureNotFound) || errors.Is(err, errNotYetReached) {
		return status, errors.Wrapf(ErrConfirmationTimeout, "%s not %s after %s", sig, commitment.Commitment, timeout)
	}
	return status, err
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.String()
	}

	var resp struct {
		Value []*struct {
			Slot               uint64          `json:"slot"`
			Confirmations      *int            `json:"confirmations"`
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	config := map[string]any{"searchTransactionHistory": true}
	if err := c.call(&resp, "getSignatureStatuses", encoded, config); err != nil {
		return nil, errors.Wrap(err, "getSignatureStatuses() failed to send request")
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if i >= len(statuses) {
			break
		}
		if v == nil {
			continue
		}

		status := &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}

		if len(v.Err) > 0 && !bytes.Equal(v.Err, []byte("null")) {
			var raw any
			if err := json.Unmarshal(v.Err, &raw); err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}

			txErr, err := ParseTransactionError(raw)
			if err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}
			status.ErrorResult = txErr
		}

		statuses[i] = status
	}

	return statuses, nil
}
