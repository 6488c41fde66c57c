package token

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/binary"
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
)

// ProgramKey is the SPL token program, TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA.
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

// Command is the leading byte of token program instruction data.
type Command byte

// Only the commands this package builds are named. The gaps keep the
// remaining values aligned with the program's instruction enum.
const (
	CommandInitializeMint Command = 0
	CommandTransfer       Command = 3
	CommandApprove        Command = 4
	CommandMintTo         Command = 7

	CommandUnknown = Command(math.MaxUint8)
)

const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	_ // InvalidNumberOfProvidedSigners
	_ // InvalidNumberOfRequiredSigners
	ErrorUninitializedState
	_ // NativeNotSupported
	_ // NonNativeHasBalance
	ErrorInvalidInstruction
	_ // InvalidState
	ErrorOverflow
)

// MaxDecimals is the largest precision where one whole token still fits in
// a u64 amount.
const MaxDecimals = 18

const (
	initializeMintDataSize = 1 + 1 + ed25519.PublicKeySize + 1 + ed25519.PublicKeySize
	amountDataSize         = 1 + 8
)

// GetCommand returns the command of the token instruction at index.
func GetCommand(m solana.Message, index int) (Command, error) {
	i, err := m.ResolveInstruction(index, ProgramKey)
	if err != nil {
		return CommandUnknown, err
	}
	if len(i.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}
	return Command(i.Data[0]), nil
}

// InitializeMint sets up an allocated mint account. A nil freezeAuthority
// leaves the mint without one.
//
// Accounts: [writable] mint, [] rent sysvar.
func InitializeMint(mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	w := binary.NewWriter(initializeMintDataSize)
	w.Uint8(byte(CommandInitializeMint))
	w.Uint8(decimals)
	w.Key(mintAuthority)
	// This instruction encodes its option tag in a single byte, unlike the
	// account state layouts.
	w.Bool(len(freezeAuthority) > 0)
	w.Key(freezeAuthority)

	return solana.NewInstruction(
		ProgramKey,
		w.Bytes(),
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeMint struct {
	Mint            ed25519.PublicKey
	Decimals        byte
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey
}

func DecompileInitializeMint(m solana.Message, index int) (*DecompiledInitializeMint, error) {
	i, err := resolve(m, index, CommandInitializeMint, 2, initializeMintDataSize)
	if err != nil {
		return nil, err
	}
	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if !bytes.Equal(i.Accounts[1], system.RentSysVar) {
		return nil, errors.New("rent sysvar mismatch")
	}

	r := binary.NewReader(i.Data[1:])
	v := &DecompiledInitializeMint{
		Mint:          i.Accounts[0],
		Decimals:      r.Uint8(),
		MintAuthority: r.Key(),
	}
	if r.Bool() {
		v.FreezeAuthority = r.Key()
	}
	return v, nil
}

// Transfer moves amount from source to dest. Both must hold the same mint.
//
// Accounts: [writable] source, [writable] destination, [signer] owner.
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandTransfer, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

// DecompileTransfer accepts trailing multisig signer accounts after the
// owner.
func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	i, err := resolve(m, index, CommandTransfer, 3, amountDataSize)
	if err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      i.Accounts[0],
		Destination: i.Accounts[1],
		Owner:       i.Accounts[2],
		Amount:      binary.NewReader(i.Data[1:]).Uint64(),
	}, nil
}

// MintTo issues amount new tokens of mint into dest.
//
// Accounts: [writable] mint, [writable] destination, [signer] mint authority.
func MintTo(mint, dest, authority ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandMintTo, amount),
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

type DecompiledMintTo struct {
	Mint        ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
	Amount      uint64
}

func DecompileMintTo(m solana.Message, index int) (*DecompiledMintTo, error) {
	i, err := resolve(m, index, CommandMintTo, 3, amountDataSize)
	if err != nil {
		return nil, err
	}

	return &DecompiledMintTo{
		Mint:        i.Accounts[0],
		Destination: i.Accounts[1],
		Authority:   i.Accounts[2],
		Amount:      binary.NewReader(i.Data[1:]).Uint64(),
	}, nil
}

func amountData(command Command, amount uint64) []byte {
	w := binary.NewWriter(amountDataSize)
	w.Uint8(byte(command))
	w.Uint64(amount)
	return w.Bytes()
}

// resolve checks the instruction at index is the given token command, has at
// least minAccounts accounts, and carries exactly dataSize bytes of data.
func resolve(m solana.Message, index int, command Command, minAccounts, dataSize int) (solana.ResolvedInstruction, error) {
	i, err := m.ResolveInstruction(index, ProgramKey)
	if err != nil {
		return i, err
	}
	if len(i.Data) == 0 || Command(i.Data[0]) != command {
		return i, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) < minAccounts {
		return i, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != dataSize {
		return i, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}
	return i, nil
}
