package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey is ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL.
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

const (
	associatedCreate byte = iota
	associatedCreateIdempotent
)

const associatedCreateAccounts = 7

// GetAssociatedAccount derives the canonical token account for wallet and
// mint: the program address of [wallet, token program, mint] under the
// associated token account program.
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(AssociatedTokenAccountProgramKey, wallet, ProgramKey, mint)
}

// CreateAssociatedTokenAccountIdempotent creates wallet's associated account
// for mint, paid for by subsidizer. It succeeds without changes when the
// account already exists with the same owner and mint.
func CreateAssociatedTokenAccountIdempotent(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return newAssociatedCreate(associatedCreateIdempotent, subsidizer, wallet, mint)
}

func newAssociatedCreate(variant byte, subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	address, err := GetAssociatedAccount(wallet, mint)
	if err != nil {
		return solana.Instruction{}, nil, errors.Wrap(err, "failed to derive associated account")
	}

	accounts := []solana.AccountMeta{
		solana.NewAccountMeta(subsidizer, true),
		solana.NewAccountMeta(address, false),
	}
	for _, readonly := range [][]byte{wallet, mint, system.ProgramKey[:], ProgramKey, system.RentSysVar} {
		accounts = append(accounts, solana.NewReadonlyAccountMeta(readonly, false))
	}

	return solana.NewInstruction(AssociatedTokenAccountProgramKey, []byte{variant}, accounts...), address, nil
}

type DecompiledCreateAssociatedAccount struct {
	Subsidizer ed25519.PublicKey
	Address    ed25519.PublicKey
	Owner      ed25519.PublicKey
	Mint       ed25519.PublicKey
	Idempotent bool
}

// DecompileAnyCreateAssociatedAccount accepts both the idempotent create and
// the create that fails on an existing account. Empty data is the legacy
// encoding of the latter.
func DecompileAnyCreateAssociatedAccount(m solana.Message, index int) (*DecompiledCreateAssociatedAccount, error) {
	i, err := m.ResolveInstruction(index, AssociatedTokenAccountProgramKey)
	if err != nil {
		return nil, err
	}

	var idempotent bool
	switch {
	case len(i.Data) == 0:
	case len(i.Data) > 1:
		return nil, solana.ErrIncorrectInstruction
	case i.Data[0] == associatedCreate:
	case i.Data[0] == associatedCreateIdempotent:
		idempotent = true
	default:
		return nil, solana.ErrIncorrectInstruction
	}

	if len(i.Accounts) != associatedCreateAccounts {
		return nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), associatedCreateAccounts)
	}

	for _, expected := range []struct {
		position int
		key      ed25519.PublicKey
		name     string
	}{
		{4, system.ProgramKey[:], "system program"},
		{5, ProgramKey, "token program"},
		{6, system.RentSysVar, "rent sysvar"},
	} {
		if !bytes.Equal(i.Accounts[expected.position], expected.key) {
			return nil, errors.Errorf("%s key mismatch", expected.name)
		}
	}

	return &DecompiledCreateAssociatedAccount{
		Subsidizer: i.Accounts[0],
		Address:    i.Accounts[1],
		Owner:      i.Accounts[2],
		Mint:       i.Accounts[3],
		Idempotent: idempotent,
	}, nil
}
