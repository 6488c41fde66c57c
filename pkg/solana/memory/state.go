package memory

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana"
	"github.com/code-payments/spl-airdrop/pkg/solana/system"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

var errInsufficientLamports = errors.New("insufficient lamports")

// systemErrorAccountAlreadyInUse is the system program's custom error for
// creating an account that already exists.
const systemErrorAccountAlreadyInUse solana.CustomError = 0

// state is a copy-on-write view of the cluster's accounts for the duration of
// a single transaction.
type state struct {
	base  map[string]solana.AccountInfo
	dirty map[string]solana.AccountInfo
}

func newState(base map[string]solana.AccountInfo) *state {
	return &state{
		base:  base,
		dirty: make(map[string]solana.AccountInfo),
	}
}

func (s *state) get(account ed25519.PublicKey) (solana.AccountInfo, bool) {
	if info, ok := s.dirty[string(account)]; ok {
		return info, true
	}
	info, ok := s.base[string(account)]
	if !ok {
		return info, false
	}
	return cloneInfo(info), true
}

func (s *state) put(account ed25519.PublicKey, info solana.AccountInfo) {
	s.dirty[string(account)] = info
}

func (s *state) commit(accounts map[string]solana.AccountInfo) {
	for k, v := range s.dirty {
		accounts[k] = v
	}
}

func (s *state) debit(account ed25519.PublicKey, lamports uint64) error {
	info, ok := s.get(account)
	if !ok || info.Lamports < lamports {
		return errInsufficientLamports
	}
	info.Lamports -= lamports
	s.put(account, info)
	return nil
}

func (s *state) execute(m solana.Message, index int) error {
	program, _ := m.ProgramAt(index)

	switch {
	case bytes.Equal(program, system.ProgramKey[:]):
		return s.executeSystem(m, index)
	case bytes.Equal(program, token.ProgramKey):
		return s.executeToken(m, index)
	case bytes.Equal(program, token.AssociatedTokenAccountProgramKey):
		return s.executeAssociated(m, index)
	default:
		return instructionError(index, solana.InstructionErrorIncorrectProgramID)
	}
}

func (s *state) executeSystem(m solana.Message, index int) error {
	if transfer, err := system.DecompileTransfer(m, index); err == nil {
		return s.transferLamports(index, transfer)
	}

	create, err := system.DecompileCreateAccount(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	if _, exists := s.get(create.Address); exists {
		return customError(index, systemErrorAccountAlreadyInUse)
	}
	if err := s.debit(create.Funder, create.Lamports); err != nil {
		return instructionError(index, solana.InstructionErrorInsufficientFunds)
	}

	s.put(create.Address, solana.AccountInfo{
		Data:     make([]byte, create.Size),
		Owner:    create.Owner,
		Lamports: create.Lamports,
	})
	return nil
}

func (s *state) transferLamports(index int, transfer *system.DecompiledTransfer) error {
	if err := s.debit(transfer.Source, transfer.Lamports); err != nil {
		return instructionError(index, solana.InstructionErrorInsufficientFunds)
	}

	dest, ok := s.get(transfer.Dest)
	if !ok {
		dest.Owner = system.ProgramKey[:]
	}
	if dest.Lamports > math.MaxUint64-transfer.Lamports {
		return instructionError(index, solana.InstructionErrorInvalidArgument)
	}
	dest.Lamports += transfer.Lamports
	s.put(transfer.Dest, dest)
	return nil
}

func (s *state) executeToken(m solana.Message, index int) error {
	cmd, err := token.GetCommand(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	switch cmd {
	case token.CommandInitializeMint:
		return s.initializeMint(m, index)
	case token.CommandMintTo:
		return s.mintTo(m, index)
	case token.CommandTransfer:
		return s.transfer(m, index)
	default:
		return customError(index, token.ErrorInvalidInstruction)
	}
}

func (s *state) initializeMint(m solana.Message, index int) error {
	init, err := token.DecompileInitializeMint(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	info, ok := s.get(init.Mint)
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return instructionError(index, solana.InstructionErrorIncorrectProgramID)
	}

	var mint token.Mint
	if !mint.Unmarshal(info.Data) {
		return customError(index, token.ErrorInvalidMint)
	}
	if mint.IsInitialized {
		return customError(index, token.ErrorAlreadyInUse)
	}
	if info.Lamports < rentExemption(token.MintAccountSize) {
		return customError(index, token.ErrorNotRentExempt)
	}

	mint = token.Mint{
		MintAuthority:   init.MintAuthority,
		Decimals:        init.Decimals,
		IsInitialized:   true,
		FreezeAuthority: init.FreezeAuthority,
	}
	info.Data = mint.Marshal()
	s.put(init.Mint, info)
	return nil
}

func (s *state) mintTo(m solana.Message, index int) error {
	mintTo, err := token.DecompileMintTo(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	mintInfo, mint, err := s.getMint(index, mintTo.Mint)
	if err != nil {
		return err
	}
	if len(mint.MintAuthority) == 0 {
		return customError(index, token.ErrorFixedSupply)
	}
	if !bytes.Equal(mint.MintAuthority, mintTo.Authority) {
		return customError(index, token.ErrorOwnerMismatch)
	}

	destInfo, dest, err := s.getTokenAccount(index, mintTo.Destination)
	if err != nil {
		return err
	}
	if !bytes.Equal(dest.Mint, mintTo.Mint) {
		return customError(index, token.ErrorMintMismatch)
	}
	if mint.Supply > math.MaxUint64-mintTo.Amount {
		return customError(index, token.ErrorOverflow)
	}

	mint.Supply += mintTo.Amount
	dest.Amount += mintTo.Amount

	mintInfo.Data = mint.Marshal()
	destInfo.Data = dest.Marshal()
	s.put(mintTo.Mint, mintInfo)
	s.put(mintTo.Destination, destInfo)
	return nil
}

func (s *state) transfer(m solana.Message, index int) error {
	transfer, err := token.DecompileTransfer(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	sourceInfo, source, err := s.getTokenAccount(index, transfer.Source)
	if err != nil {
		return err
	}
	if !bytes.Equal(source.Owner, transfer.Owner) {
		return customError(index, token.ErrorOwnerMismatch)
	}
	if source.Amount < transfer.Amount {
		return customError(index, token.ErrorInsufficientFunds)
	}
	source.Amount -= transfer.Amount
	sourceInfo.Data = source.Marshal()
	s.put(transfer.Source, sourceInfo)

	// Re-read the destination so self transfers observe the debit.
	destInfo, dest, err := s.getTokenAccount(index, transfer.Destination)
	if err != nil {
		return err
	}
	if !bytes.Equal(dest.Mint, source.Mint) {
		return customError(index, token.ErrorMintMismatch)
	}
	dest.Amount += transfer.Amount
	destInfo.Data = dest.Marshal()
	s.put(transfer.Destination, destInfo)
	return nil
}

func (s *state) executeAssociated(m solana.Message, index int) error {
	create, err := token.DecompileAnyCreateAssociatedAccount(m, index)
	if err != nil {
		return instructionError(index, solana.InstructionErrorInvalidInstructionData)
	}

	expected, err := token.GetAssociatedAccount(create.Owner, create.Mint)
	if err != nil || !bytes.Equal(expected, create.Address) {
		return instructionError(index, solana.InstructionErrorInvalidArgument)
	}

	if info, exists := s.get(create.Address); exists {
		if !create.Idempotent {
			return customError(index, systemErrorAccountAlreadyInUse)
		}

		var existing token.Account
		if !bytes.Equal(info.Owner, token.ProgramKey) || !existing.Unmarshal(info.Data) {
			return instructionError(index, solana.InstructionErrorIllegalOwner)
		}
		if !bytes.Equal(existing.Owner, create.Owner) || !bytes.Equal(existing.Mint, create.Mint) {
			return instructionError(index, solana.InstructionErrorInvalidAccountData)
		}
		return nil
	}

	if _, _, err := s.getMint(index, create.Mint); err != nil {
		return err
	}

	lamports := rentExemption(token.AccountSize)
	if err := s.debit(create.Subsidizer, lamports); err != nil {
		return instructionError(index, solana.InstructionErrorInsufficientFunds)
	}

	account := token.Account{
		Mint:  create.Mint,
		Owner: create.Owner,
		State: token.AccountStateInitialized,
	}
	s.put(create.Address, solana.AccountInfo{
		Data:     account.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: lamports,
	})
	return nil
}

func (s *state) getMint(index int, address ed25519.PublicKey) (solana.AccountInfo, *token.Mint, error) {
	info, ok := s.get(address)
	if !ok || !bytes.Equal(info.Owner, token.ProgramKey) {
		return info, nil, customError(index, token.ErrorInvalidMint)
	}

	var mint token.Mint
	if !mint.Unmarshal(info.Data) || !mint.IsInitialized {
		return info, nil, customError(index, token.ErrorInvalidMint)
	}
	return info, &mint, nil
}

func (s *state) getTokenAccount(index int, address ed25519.PublicKey) (solana.AccountInfo, *token.Account, error) {
	info, ok := s.get(address)
	if !ok {
		return info, nil, instructionError(index, solana.InstructionErrorUninitializedAccount)
	}
	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return info, nil, instructionError(index, solana.InstructionErrorIllegalOwner)
	}

	var account token.Account
	if !account.Unmarshal(info.Data) || account.State == token.AccountStateUninitialized {
		return info, nil, customError(index, token.ErrorUninitializedState)
	}
	return info, &account, nil
}

func instructionError(index int, key solana.InstructionErrorKey) error {
	return solana.NewInstructionTransactionError(solana.NewInstructionError(index, key))
}

func customError(index int, code solana.CustomError) error {
	return solana.NewInstructionTransactionError(&solana.InstructionError{Index: index, Err: code})
}
