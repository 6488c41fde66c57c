// Package system encodes instructions for the native system program, which
// owns new accounts and moves lamports.
package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/binary"
)

var (
	// ProgramKey is the system program, which is the all-zero key.
	ProgramKey [32]byte

	// RentSysVar holds the cluster's rent parameters. Programs that allocate
	// accounts take it as a readonly input.
	RentSysVar = mustDecode("SysvarRent111111111111111111111111111111111")
)

func mustDecode(s string) ed25519.PublicKey {
	b, err := base58.Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Instruction discriminants are little endian u32s.
const (
	commandCreateAccount uint32 = 0
	commandAssign        uint32 = 1
	commandTransfer      uint32 = 2
)

const (
	createAccountDataSize = 4 + 8 + 8 + ed25519.PublicKeySize
	transferDataSize      = 4 + 8
)

// CreateAccount allocates size bytes at address, funds it with lamports from
// funder and assigns it to owner. Both funder and address must sign.
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	w := binary.NewWriter(createAccountDataSize)
	w.Uint32(commandCreateAccount)
	w.Uint64(lamports)
	w.Uint64(size)
	w.Key(owner)

	return solana.NewInstruction(
		ProgramKey[:],
		w.Bytes(),
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	i, r, err := resolve(m, index, commandCreateAccount, createAccountDataSize)
	if err != nil {
		return nil, err
	}

	return &DecompiledCreateAccount{
		Funder:   i.Accounts[0],
		Address:  i.Accounts[1],
		Lamports: r.Uint64(),
		Size:     r.Uint64(),
		Owner:    r.Key(),
	}, nil
}

// Transfer moves lamports from source, which must sign, to dest.
func Transfer(source, dest ed25519.PublicKey, lamports uint64) solana.Instruction {
	w := binary.NewWriter(transferDataSize)
	w.Uint32(commandTransfer)
	w.Uint64(lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		w.Bytes(),
		solana.NewAccountMeta(source, true),
		solana.NewAccountMeta(dest, false),
	)
}

type DecompiledTransfer struct {
	Source   ed25519.PublicKey
	Dest     ed25519.PublicKey
	Lamports uint64
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	i, r, err := resolve(m, index, commandTransfer, transferDataSize)
	if err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:   i.Accounts[0],
		Dest:     i.Accounts[1],
		Lamports: r.Uint64(),
	}, nil
}

// resolve checks the instruction at index is the given two account system
// command and returns a reader positioned after the discriminant.
func resolve(m solana.Message, index int, command uint32, dataSize int) (solana.ResolvedInstruction, *binary.Reader, error) {
	i, err := m.ResolveInstruction(index, ProgramKey[:])
	if err != nil {
		return i, nil, err
	}
	if len(i.Data) < 4 {
		return i, nil, solana.ErrIncorrectInstruction
	}

	r := binary.NewReader(i.Data)
	if r.Uint32() != command {
		return i, nil, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) != 2 {
		return i, nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != dataSize {
		return i, nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}
	return i, r, nil
}
