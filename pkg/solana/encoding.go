package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/solana/shortvec"
)

// Legacy wire format. Every variable length section is prefixed with a
// compact-u16 count.

func writeCompact(b *bytes.Buffer, data []byte) {
	_, _ = shortvec.EncodeLen(b, len(data))
	b.Write(data)
}

func (t Transaction) Marshal() []byte {
	b := &bytes.Buffer{}

	_, _ = shortvec.EncodeLen(b, len(t.Signatures))
	for _, sig := range t.Signatures {
		b.Write(sig[:])
	}
	b.Write(t.Message.Marshal())

	return b.Bytes()
}

// Marshal encodes the message, which is also the payload that gets signed.
func (m Message) Marshal() []byte {
	b := &bytes.Buffer{}

	b.Write([]byte{m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly})

	_, _ = shortvec.EncodeLen(b, len(m.Accounts))
	for _, account := range m.Accounts {
		b.Write(account)
	}

	b.Write(m.RecentBlockhash[:])

	_, _ = shortvec.EncodeLen(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b.WriteByte(ix.ProgramIndex)
		writeCompact(b, ix.Accounts)
		writeCompact(b, ix.Data)
	}

	return b.Bytes()
}

type wireReader struct {
	r *bytes.Reader
}

func (w wireReader) next(n int, what string) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(w.r, out); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", what)
	}
	return out, nil
}

func (w wireReader) count(what string) (int, error) {
	n, err := shortvec.DecodeLen(w.r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s length", what)
	}
	return n, nil
}

func (w wireReader) compact(what string) ([]byte, error) {
	n, err := w.count(what)
	if err != nil {
		return nil, err
	}
	return w.next(n, what)
}

func (w wireReader) rest() []byte {
	out := make([]byte, w.r.Len())
	_, _ = w.r.Read(out)
	return out
}

func (t *Transaction) Unmarshal(b []byte) error {
	w := wireReader{r: bytes.NewReader(b)}

	n, err := w.count("signatures")
	if err != nil {
		return err
	}

	t.Signatures = make([]Signature, n)
	for i := range t.Signatures {
		sig, err := w.next(len(t.Signatures[i]), "signature")
		if err != nil {
			return errors.Wrapf(err, "signature %d", i)
		}
		copy(t.Signatures[i][:], sig)
	}

	return t.Message.Unmarshal(w.rest())
}

func (m *Message) Unmarshal(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	// Versioned messages set the high bit of the first byte
	if b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	w := wireReader{r: bytes.NewReader(b)}

	header, err := w.next(3, "header")
	if err != nil {
		return err
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	numAccounts, err := w.count("accounts")
	if err != nil {
		return err
	}
	m.Accounts = make([]ed25519.PublicKey, numAccounts)
	for i := range m.Accounts {
		if m.Accounts[i], err = w.next(ed25519.PublicKeySize, "account"); err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
	}

	blockhash, err := w.next(len(m.RecentBlockhash), "recent blockhash")
	if err != nil {
		return err
	}
	copy(m.RecentBlockhash[:], blockhash)

	numInstructions, err := w.count("instructions")
	if err != nil {
		return err
	}
	m.Instructions = make([]CompiledInstruction, numInstructions)
	for i := range m.Instructions {
		if m.Instructions[i], err = m.readInstruction(w); err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
	}

	return nil
}

func (m *Message) readInstruction(w wireReader) (ix CompiledInstruction, err error) {
	program, err := w.next(1, "program index")
	if err != nil {
		return ix, err
	}
	ix.ProgramIndex = program[0]
	if int(ix.ProgramIndex) >= len(m.Accounts) {
		return ix, errors.Errorf("program index %d out of range", ix.ProgramIndex)
	}

	if ix.Accounts, err = w.compact("account indexes"); err != nil {
		return ix, err
	}
	for _, index := range ix.Accounts {
		if int(index) >= len(m.Accounts) {
			return ix, errors.Errorf("account index %d out of range", index)
		}
	}

	if ix.Data, err = w.compact("data"); err != nil {
		return ix, err
	}
	return ix, nil
}
