package solana

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybbus/jsonrpc"
)

func decodeJSON(t *testing.T, s string) any {
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestParseTransactionError(t *testing.T) {
	e, err := ParseTransactionError(decodeJSON(t, `{"InstructionError":[2,{"Custom":3}]}`))
	require.NoError(t, err)
	assert.Equal(t, TransactionErrorInstructionError, e.ErrorKey())
	require.NotNil(t, e.InstructionError())
	assert.Equal(t, 2, e.InstructionError().Index)
	assert.Equal(t, InstructionErrorCustom, e.InstructionError().ErrorKey())
	require.NotNil(t, e.InstructionError().CustomError())
	assert.Equal(t, CustomError(3), *e.InstructionError().CustomError())

	e, err = ParseTransactionError(decodeJSON(t, `{"InstructionError":[0,"InvalidArgument"]}`))
	require.NoError(t, err)
	require.NotNil(t, e.InstructionError())
	assert.Equal(t, 0, e.InstructionError().Index)
	assert.Equal(t, InstructionErrorInvalidArgument, e.InstructionError().ErrorKey())
	assert.Nil(t, e.InstructionError().CustomError())

	e, err = ParseTransactionError(decodeJSON(t, `"DuplicateSignature"`))
	require.NoError(t, err)
	assert.Equal(t, TransactionErrorDuplicateSignature, e.ErrorKey())
	assert.Nil(t, e.InstructionError())
	assert.Equal(t, "DuplicateSignature", e.Error())

	e, err = ParseTransactionError(nil)
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestParseTransactionError_Malformed(t *testing.T) {
	e, err := ParseTransactionError(decodeJSON(t, `{"A":1,"B":2}`))
	assert.Error(t, err)
	assert.NotNil(t, e)

	e, err = ParseTransactionError(decodeJSON(t, `{"InstructionError":[0]}`))
	assert.Error(t, err)
	require.NotNil(t, e)
	assert.Equal(t, TransactionErrorInstructionError, e.ErrorKey())

	_, err = ParseTransactionError(decodeJSON(t, `42`))
	assert.Error(t, err)
}

func TestParseRPCError(t *testing.T) {
	e, err := ParseRPCError(&jsonrpc.RPCError{
		Code: -32002,
		Data: decodeJSON(t, `{"err":{"InstructionError":[1,{"Custom":1}]},"logs":[]}`),
	})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.InstructionError().Index)

	e, err = ParseRPCError(&jsonrpc.RPCError{Code: -32002, Data: decodeJSON(t, `{"err":null}`)})
	assert.NoError(t, err)
	assert.Nil(t, e)

	_, err = ParseRPCError(&jsonrpc.RPCError{Code: -32600, Data: "bad request"})
	assert.Error(t, err)
}

func TestTransactionError_JSON(t *testing.T) {
	for expected, e := range map[string]*TransactionError{
		`"DuplicateSignature"`:                       NewTransactionError(TransactionErrorDuplicateSignature),
		`{"InstructionError":[0,"InvalidArgument"]}`: NewInstructionTransactionError(NewInstructionError(0, InstructionErrorInvalidArgument)),
		`{"InstructionError":[2,{"Custom":3}]}`:      NewInstructionTransactionError(&InstructionError{Index: 2, Err: CustomError(3)}),
	} {
		encoded, err := e.JSONString()
		require.NoError(t, err)
		assert.JSONEq(t, expected, encoded)

		parsed, err := ParseTransactionError(decodeJSON(t, encoded))
		require.NoError(t, err)
		assert.Equal(t, e.ErrorKey(), parsed.ErrorKey())
		assert.Equal(t, e.Error(), parsed.Error())
	}
}

func TestParseJSONNumber(t *testing.T) {
	for _, v := range []any{"1", 1.0, json.Number("1")} {
		n, err := parseJSONNumber(v)
		assert.NoError(t, err)
		assert.Equal(t, 1, n, v)
	}

	for _, v := range []any{"one", json.Number("1.5"), true} {
		_, err := parseJSONNumber(v)
		assert.Error(t, err, v)
	}
}

func TestGetCustomError(t *testing.T) {
	wrapped := errors.Wrap(NewInstructionTransactionError(&InstructionError{Index: 1, Err: CustomError(1)}), "failed to submit")
	assert.True(t, IsTransactionError(wrapped))

	code, ok := GetCustomError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CustomError(1), code)

	_, ok = GetCustomError(NewTransactionError(TransactionErrorBlockhashNotFound))
	assert.False(t, ok)

	_, ok = GetCustomError(errors.New("timeout"))
	assert.False(t, ok)
	assert.False(t, IsTransactionError(errors.New("timeout")))
}
