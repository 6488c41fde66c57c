package binary

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_RoundTrip(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	native := uint64(2_039_280)

	size := 32 + (4 + 32) + (4 + 32) + 8 + (4 + 8) + (4 + 8) + 4 + 1 + 1
	w := NewWriter(size)
	w.Key(key)
	w.OptionalKey(key)
	w.OptionalKey(nil)
	w.Uint64(42)
	w.OptionalUint64(&native)
	w.OptionalUint64(nil)
	w.Uint32(7)
	w.Uint8(9)
	w.Bool(true)

	b := w.Bytes()
	require.Len(t, b, size)

	r := NewReader(b)
	assert.EqualValues(t, key, r.Key())
	assert.EqualValues(t, key, r.OptionalKey())
	assert.Nil(t, r.OptionalKey())
	assert.EqualValues(t, 42, r.Uint64())
	assert.Equal(t, &native, r.OptionalUint64())
	assert.Nil(t, r.OptionalUint64())
	assert.EqualValues(t, 7, r.Uint32())
	assert.EqualValues(t, 9, r.Uint8())
	assert.True(t, r.Bool())
}

func TestLayout_OptionTag(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	w := NewWriter(2 * (4 + 32))
	w.OptionalKey(key)
	w.OptionalKey(nil)

	b := w.Bytes()
	assert.Equal(t, []byte{1, 0, 0, 0}, b[:4])
	assert.EqualValues(t, key, b[4:36])
	assert.Equal(t, make([]byte, 4+32), b[36:])
}

func TestLayout_Overflow(t *testing.T) {
	assert.Panics(t, func() {
		NewWriter(4).Uint64(1)
	})
	assert.Panics(t, func() {
		NewReader(make([]byte, 31)).Key()
	})
}
