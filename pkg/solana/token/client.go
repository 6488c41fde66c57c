package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
)

var (
	// ErrAccountNotFound indicates there is no account for the given address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidTokenAccount indicates that a Solana account exists at the
	// given address, but it is either not initialized, or not configured correctly.
	ErrInvalidTokenAccount = errors.New("invalid token account")
	// ErrInvalidMint indicates that a Solana account exists at the mint
	// address, but it is not an initialized token mint.
	ErrInvalidMint = errors.New("invalid mint")
)

// Client provides utilities for accessing token accounts for a given token.
type Client struct {
	sc         solana.Client
	token      ed25519.PublicKey
	commitment solana.Commitment
}

// NewClient creates a new Client. Reads and confirmations use the provided
// commitment.
func NewClient(sc solana.Client, token ed25519.PublicKey, commitment solana.Commitment) *Client {
	return &Client{
		sc:         sc,
		token:      token,
		commitment: commitment,
	}
}

// GetAccount returns the token account info for the specified account.
//
// If the account is not initialized, or belongs to a different
// mint, then ErrInvalidTokenAccount is returned.
func (c *Client) GetAccount(accountID ed25519.PublicKey) (*Account, error) {
	accountInfo, err := c.sc.GetAccountInfo(accountID, c.commitment)
	if errors.Is(err, solana.ErrNoAccountInfo) {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !bytes.Equal(accountInfo.Owner, ProgramKey) {
		return nil, ErrInvalidTokenAccount
	}

	var account Account
	if !account.Unmarshal(accountInfo.Data) {
		return nil, ErrInvalidTokenAccount
	}

	if !bytes.Equal(c.token, account.Mint) {
		return nil, ErrInvalidTokenAccount
	}

	return &account, nil
}

// GetMint returns the on-chain state of the client's mint.
func (c *Client) GetMint() (*Mint, error) {
	accountInfo, err := c.sc.GetAccountInfo(c.token, c.commitment)
	if errors.Is(err, solana.ErrNoAccountInfo) {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get mint info")
	}

	if !bytes.Equal(accountInfo.Owner, ProgramKey) {
		return nil, ErrInvalidMint
	}

	var mint Mint
	if !mint.Unmarshal(accountInfo.Data) || !mint.IsInitialized {
		return nil, ErrInvalidMint
	}

	return &mint, nil
}

// GetAssociatedAccount returns the address and state of the owner's
// associated account. If the account doesn't exist, the address is returned
// alongside ErrAccountNotFound.
func (c *Client) GetAssociatedAccount(owner ed25519.PublicKey) (ed25519.PublicKey, *Account, error) {
	addr, err := GetAssociatedAccount(owner, c.token)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to derive associated account")
	}

	account, err := c.GetAccount(addr)
	if err != nil {
		return addr, nil, err
	}

	if !bytes.Equal(account.Owner, owner) {
		return addr, nil, ErrInvalidTokenAccount
	}

	return addr, account, nil
}

// GetOrCreateAssociatedAccount returns the owner's associated account,
// creating it (funded by payer) if it doesn't exist yet.
func (c *Client) GetOrCreateAssociatedAccount(payer ed25519.PrivateKey, owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	addr, _, err := c.GetAssociatedAccount(owner)
	if err == nil {
		return addr, nil
	} else if err != ErrAccountNotFound {
		return addr, err
	}

	// Idempotent, in case a previous attempt landed after we gave up on it.
	create, _, err := CreateAssociatedTokenAccountIdempotent(payer.Public().(ed25519.PublicKey), owner, c.token)
	if err != nil {
		return addr, err
	}

	if _, err := c.Submit(payer, nil, create); err != nil {
		return addr, errors.Wrap(err, "failed to create associated account")
	}

	return addr, nil
}

// GetBalance returns the balance of a token account, in base units.
func (c *Client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	balance, _, err := c.sc.GetTokenAccountBalance(account, c.commitment)
	return balance, err
}

// Transfer moves amount from source to dest, signed by the source owner, who
// also pays the fee.
func (c *Client) Transfer(owner ed25519.PrivateKey, source, dest ed25519.PublicKey, amount uint64) (solana.Signature, error) {
	return c.Submit(owner, nil, Transfer(source, dest, owner.Public().(ed25519.PublicKey), amount))
}

// MintTo mints amount into dest, signed by the mint authority, who also pays
// the fee.
func (c *Client) MintTo(authority ed25519.PrivateKey, dest ed25519.PublicKey, amount uint64) (solana.Signature, error) {
	return c.Submit(authority, nil, MintTo(c.token, dest, authority.Public().(ed25519.PublicKey), amount))
}

// Submit builds a transaction paid for by payer, signs it with payer and the
// additional signers, submits it, and waits for the client's commitment.
//
// A transaction that failed on chain (or in preflight) returns a
// *solana.TransactionError. A transaction that was sent but not observed at
// the commitment in time returns solana.ErrConfirmationTimeout, in which
// case it may still land.
func (c *Client) Submit(payer ed25519.PrivateKey, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	bh, err := c.sc.GetLatestBlockhash()
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to get recent blockhash")
	}

	txn := solana.NewTransaction(payer.Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(bh)
	if err := txn.Sign(append([]ed25519.PrivateKey{payer}, signers...)...); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	sig, err := c.sc.SubmitTransaction(txn, c.commitment)
	if err != nil {
		return sig, err
	}

	if _, err := c.sc.GetSignatureStatus(sig, c.commitment); err != nil {
		return sig, err
	}

	return sig, nil
}
