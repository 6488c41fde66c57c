package solana

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
)

// AccountMeta is an account referenced by an instruction, along with the
// permissions the instruction needs on it.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	isPayer   bool
	isProgram bool
}

func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner, IsWritable: true}
}

func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner}
}

// merge widens m's permissions to include other's.
func (m *AccountMeta) merge(other AccountMeta) {
	m.IsSigner = m.IsSigner || other.IsSigner
	m.IsWritable = m.IsWritable || other.IsWritable
	m.isPayer = m.isPayer || other.isPayer
}

// rank orders accounts within a message: payer, writable signers, readonly
// signers, writable non-signers, readonly non-signers, then programs.
func (m AccountMeta) rank() int {
	switch {
	case m.isPayer:
		return 0
	case m.isProgram:
		return 5
	case m.IsSigner && m.IsWritable:
		return 1
	case m.IsSigner:
		return 2
	case m.IsWritable:
		return 3
	default:
		return 4
	}
}

func compareAccountMeta(a, b AccountMeta) int {
	if ra, rb := a.rank(), b.rank(); ra != rb {
		return ra - rb
	}
	return bytes.Compare(a.PublicKey, b.PublicKey)
}

type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// CompiledInstruction refers to its program and accounts by their index in
// the message's account list.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}

// ResolvedInstruction is a compiled instruction with its account indexes
// replaced by the keys they refer to.
type ResolvedInstruction struct {
	Accounts []ed25519.PublicKey
	Data     []byte
}

// ResolveInstruction looks up the instruction at index and resolves its
// accounts, failing with ErrIncorrectProgram if it targets a program other
// than program.
func (m Message) ResolveInstruction(index int, program ed25519.PublicKey) (ResolvedInstruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return ResolvedInstruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	ci := m.Instructions[index]
	if !bytes.Equal(m.Accounts[ci.ProgramIndex], program) {
		return ResolvedInstruction{}, ErrIncorrectProgram
	}

	accounts := make([]ed25519.PublicKey, len(ci.Accounts))
	for i, idx := range ci.Accounts {
		accounts[i] = m.Accounts[idx]
	}
	return ResolvedInstruction{Accounts: accounts, Data: ci.Data}, nil
}

// ProgramAt returns the program invoked by the instruction at index.
func (m Message) ProgramAt(index int) (ed25519.PublicKey, bool) {
	if index < 0 || index >= len(m.Instructions) {
		return nil, false
	}
	return m.Accounts[m.Instructions[index].ProgramIndex], true
}
