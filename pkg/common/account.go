package common

import (
	"bytes"
	"crypto/ed25519"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// ErrOwnerOffCurve indicates an owner address is not an ed25519 point, so it
// cannot own an associated token account created by this tool.
var ErrOwnerOffCurve = errors.New("owner is off the ed25519 curve")

// Account is a Solana address, optionally with the private key that controls
// it. The zero value is not usable.
type Account struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
	address string
}

func NewAccountFromPublicKeyBytes(public []byte) (*Account, error) {
	if len(public) != ed25519.PublicKeySize {
		return nil, errors.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(public))
	}

	return &Account{
		public:  bytes.Clone(public),
		address: base58.Encode(public),
	}, nil
}

func NewAccountFromPublicKeyString(address string) (*Account, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, errors.Wrap(err, "address is not base58")
	}
	return NewAccountFromPublicKeyBytes(decoded)
}

// NewAccountFromPrivateKeyBytes takes a 64 byte ed25519 secret key, whose
// second half must be the public key derived from the first.
func NewAccountFromPrivateKeyBytes(private []byte) (*Account, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(private))
	}

	derived := ed25519.NewKeyFromSeed(private[:ed25519.SeedSize])
	if !bytes.Equal(derived, private) {
		return nil, errors.New("private key doesn't map to its public key")
	}

	public := derived.Public().(ed25519.PublicKey)
	return &Account{
		public:  public,
		private: derived,
		address: base58.Encode(public),
	}, nil
}

func NewRandomAccount() (*Account, error) {
	_, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "error generating private key")
	}
	return NewAccountFromPrivateKeyBytes(private)
}

// Public returns the address as an ed25519.PublicKey.
func (a *Account) Public() ed25519.PublicKey {
	return a.public
}

// Signer returns the private key for signing transactions, or nil if the
// account is public only.
func (a *Account) Signer() ed25519.PrivateKey {
	return a.private
}

func (a *Account) CanSign() bool {
	return a != nil && a.private != nil
}

func (a *Account) Sign(message []byte) ([]byte, error) {
	if !a.CanSign() {
		return nil, errors.New("private key not available")
	}
	return ed25519.Sign(a.private, message), nil
}

// AssociatedAccount derives the account's associated token account for mint.
func (a *Account) AssociatedAccount(mint *Account) (*Account, error) {
	ata, err := token.GetAssociatedAccount(a.public, mint.public)
	if err != nil {
		return nil, err
	}
	return NewAccountFromPublicKeyBytes(ata)
}

// IsOnCurve reports whether the address is a valid ed25519 point, which
// program derived addresses are not.
func (a *Account) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(a.public)
	return err == nil
}

func (a *Account) String() string {
	return a.address
}
