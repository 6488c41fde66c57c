package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// MaxTransactionSize is the largest serialized transaction that fits in a
// single packet.
const MaxTransactionSize = 1232

var ErrTransactionTooLarge = errors.New("transaction exceeds max size")

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy transaction message. Versioned messages are not needed
// for the handful of accounts a mint or transfer touches.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles the instructions into a legacy message paid for by
// payer. Signatures are left empty until Sign is called.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	m := compileMessage(payer, instructions)
	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

func compileMessage(payer ed25519.PublicKey, instructions []Instruction) Message {
	metas := []AccountMeta{{PublicKey: payer, IsSigner: true, IsWritable: true, isPayer: true}}
	for _, ix := range instructions {
		metas = append(metas, AccountMeta{PublicKey: ix.Program, isProgram: true})
		metas = append(metas, ix.Accounts...)
	}

	// A key referenced more than once gets the union of its permissions.
	var unique []AccountMeta
	seen := make(map[string]int)
	for _, meta := range metas {
		if i, ok := seen[string(meta.PublicKey)]; ok {
			unique[i].merge(meta)
			continue
		}
		seen[string(meta.PublicKey)] = len(unique)
		unique = append(unique, meta)
	}
	slices.SortStableFunc(unique, compareAccountMeta)

	var m Message
	position := make(map[string]byte, len(unique))
	for i, meta := range unique {
		position[string(meta.PublicKey)] = byte(i)

		// The system program is the all-zero key, which some callers pass as nil
		key := meta.PublicKey
		if len(key) == 0 {
			key = make(ed25519.PublicKey, ed25519.PublicKeySize)
		}
		m.Accounts = append(m.Accounts, key)

		switch {
		case meta.IsSigner:
			m.Header.NumSignatures++
			if !meta.IsWritable {
				m.Header.NumReadonlySigned++
			}
		case !meta.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: position[string(ix.Program)],
			Data:         ix.Data,
		}
		for _, account := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, position[string(account.PublicKey)])
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	return m
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() Signature {
	return t.Signatures[0]
}

func (t *Transaction) String() string {
	var sb strings.Builder
	h := t.Message.Header
	fmt.Fprintf(&sb, "header: signatures=%d readonly_signed=%d readonly=%d\n", h.NumSignatures, h.NumReadonlySigned, h.NumReadOnly)
	for i, sig := range t.Signatures {
		fmt.Fprintf(&sb, "signature[%d]: %s\n", i, sig)
	}
	for i, account := range t.Message.Accounts {
		fmt.Fprintf(&sb, "account[%d]: %s\n", i, base58.Encode(account))
	}
	for i, ix := range t.Message.Instructions {
		fmt.Fprintf(&sb, "instruction[%d]: program=%d accounts=%v data=%x\n", i, ix.ProgramIndex, ix.Accounts, ix.Data)
	}
	return sb.String()
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign signs the message with each of the provided keys. Every key must be a
// signer in the message.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	message := t.Message.Marshal()

	for _, signer := range signers {
		pub := signer.Public().(ed25519.PublicKey)
		index := slices.IndexFunc(t.Message.Accounts, func(k ed25519.PublicKey) bool {
			return bytes.Equal(k, pub)
		})

		switch {
		case index < 0:
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		case !t.Message.IsSigner(index) || index >= len(t.Signatures):
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(signer, message))
	}

	return nil
}

// Verify checks that every required signature is present and valid.
func (t *Transaction) Verify() error {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) {
		return errors.Errorf("expected %d signatures, got %d", t.Message.Header.NumSignatures, len(t.Signatures))
	}
	if len(t.Message.Accounts) < len(t.Signatures) {
		return errors.New("fewer accounts than signatures")
	}

	message := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], message, sig[:]) {
			return errors.Errorf("invalid signature for %s", base58.Encode(t.Message.Accounts[i]))
		}
	}

	return nil
}

// IsSigner reports whether the account at index is a signer of the message.
func (m Message) IsSigner(index int) bool {
	return index < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at index is writable in the message.
// Signers come first, then non-signers, each group ending with its readonly
// accounts.
func (m Message) IsWritable(index int) bool {
	if m.IsSigner(index) {
		return index < int(m.Header.NumSignatures-m.Header.NumReadonlySigned)
	}
	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}
