// Package binary reads and writes the fixed size little endian layouts used
// by on-chain program state.
//
// Optional values use the COption layout: a 4 byte tag, 1 when present,
// followed by the value's full width whether or not it is present.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

// Writer fills a fixed size buffer front to back. Writing past the end
// panics, so callers size the buffer from the layout's known length.
type Writer struct {
	buf []byte
	off int
}

func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, size)}
}

func (w *Writer) next(n int) []byte {
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b
}

func (w *Writer) Key(k ed25519.PublicKey) {
	copy(w.next(ed25519.PublicKeySize), k)
}

func (w *Writer) OptionalKey(k ed25519.PublicKey) {
	w.optionTag(len(k) > 0)
	w.Key(k)
}

func (w *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.next(8), v)
}

func (w *Writer) OptionalUint64(v *uint64) {
	w.optionTag(v != nil)
	if v == nil {
		w.next(8)
		return
	}
	w.Uint64(*v)
}

func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.next(4), v)
}

func (w *Writer) Uint8(v uint8) {
	w.next(1)[0] = v
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

func (w *Writer) optionTag(present bool) {
	var tag uint32
	if present {
		tag = 1
	}
	w.Uint32(tag)
}

// Bytes returns the whole buffer, including anything not yet written.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader is the counterpart to Writer. Reading past the end panics.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Key() ed25519.PublicKey {
	k := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(k, r.next(ed25519.PublicKeySize))
	return k
}

// OptionalKey returns nil when the option is unset.
func (r *Reader) OptionalKey() ed25519.PublicKey {
	if !r.optionTag() {
		r.next(ed25519.PublicKeySize)
		return nil
	}
	return r.Key()
}

func (r *Reader) Uint64() uint64 {
	return binary.LittleEndian.Uint64(r.next(8))
}

func (r *Reader) OptionalUint64() *uint64 {
	if !r.optionTag() {
		r.next(8)
		return nil
	}
	v := r.Uint64()
	return &v
}

func (r *Reader) Uint32() uint32 {
	return binary.LittleEndian.Uint32(r.next(4))
}

func (r *Reader) Uint8() uint8 {
	return r.next(1)[0]
}

func (r *Reader) Bool() bool {
	return r.Uint8() == 1
}

func (r *Reader) optionTag() bool {
	return r.Uint32() == 1
}
