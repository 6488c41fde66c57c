package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey is the string key returned in a transaction error.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse            TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountNotFound         TransactionErrorKey = "AccountNotFound"
	TransactionErrorInsufficientFundsForFee TransactionErrorKey = "InsufficientFundsForFee"
	TransactionErrorDuplicateSignature      TransactionErrorKey = "DuplicateSignature"
	TransactionErrorBlockhashNotFound       TransactionErrorKey = "BlockhashNotFound"
	TransactionErrorInstructionError        TransactionErrorKey = "InstructionError"
	TransactionErrorMissingSignatureForFee  TransactionErrorKey = "MissingSignatureForFee"
	TransactionErrorSignatureFailure        TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure         TransactionErrorKey = "SanitizeFailure"
)

// InstructionErrorKey is the string keys returned in an instruction error.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError              InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument           InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData    InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData        InstructionErrorKey = "InvalidAccountData"
	InstructionErrorInsufficientFunds         InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID        InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature  InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorUninitializedAccount      InstructionErrorKey = "UninitializedAccount"
	InstructionErrorIllegalOwner              InstructionErrorKey = "IllegalOwner"
	InstructionErrorCustom                    InstructionErrorKey = "Custom"
)

// CustomError is a program specific error code.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", int(c))
}

// InstructionError is the failure of a single instruction, which fails the
// whole transaction. Err is either a CustomError or an error whose text is an
// InstructionErrorKey.
type InstructionError struct {
	Index int
	Err   error
}

func NewInstructionError(index int, key InstructionErrorKey) *InstructionError {
	return &InstructionError{Index: index, Err: errors.New(string(key))}
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", i.Index, i.Err)
}

func (i InstructionError) Unwrap() error {
	return i.Err
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	switch i.Err.(type) {
	case nil:
		return ""
	case CustomError:
		return InstructionErrorCustom
	default:
		return InstructionErrorKey(i.Err.Error())
	}
}

func (i InstructionError) CustomError() *CustomError {
	if ce, ok := i.Err.(CustomError); ok {
		return &ce
	}
	return nil
}

// toJSON returns the error as the RPC encodes it: [index, "Key"] or
// [index, {"Custom": code}].
func (i InstructionError) toJSON() []any {
	if ce, ok := i.Err.(CustomError); ok {
		return []any{float64(i.Index), map[string]any{string(InstructionErrorCustom): float64(ce)}}
	}
	return []any{float64(i.Index), i.Err.Error()}
}

// TransactionError is an on-chain rejection of a transaction, either at
// preflight or after it landed in a block.
type TransactionError struct {
	key         TransactionErrorKey
	instruction *InstructionError

	// raw is the decoded JSON the error was parsed from, or would be encoded as.
	raw any
}

func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{key: key, raw: string(key)}
}

// NewInstructionTransactionError wraps a failed instruction.
func NewInstructionTransactionError(ie *InstructionError) *TransactionError {
	return &TransactionError{
		key:         TransactionErrorInstructionError,
		instruction: ie,
		raw:         map[string]any{string(TransactionErrorInstructionError): ie.toJSON()},
	}
}

func (t TransactionError) Error() string {
	if t.instruction != nil {
		return t.instruction.Error()
	}
	return string(t.key)
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instruction
}

// JSONString encodes the error the way the RPC reports it.
func (t TransactionError) JSONString() (string, error) {
	b, err := json.Marshal(t.raw)
	return string(b), err
}

// ParseRPCError extracts the transaction error from a failed preflight. A nil
// result with a nil error means the RPC error was not a transaction error.
func ParseRPCError(err *jsonrpc.RPCError) (*TransactionError, error) {
	if err == nil {
		return nil, nil
	}

	data, ok := err.Data.(map[string]any)
	if !ok {
		return nil, errors.New("expected map type")
	}
	return ParseTransactionError(data["err"])
}

// ParseTransactionError parses the "err" value of a signature status or
// preflight result. Unrecognized shapes still produce a TransactionError,
// alongside the parse error.
func ParseTransactionError(raw any) (*TransactionError, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &TransactionError{key: TransactionErrorKey(t), raw: raw}, nil
	case map[string]any:
		key, value, ok := singleEntry(t)
		if !ok {
			return &TransactionError{key: "Unknown", raw: raw}, errors.Errorf("expected one entry in transaction error, got %d", len(t))
		}

		txErr := &TransactionError{key: TransactionErrorKey(key), raw: raw}
		if txErr.key != TransactionErrorInstructionError {
			return txErr, nil
		}

		ie, err := parseInstructionError(value)
		if err != nil {
			return txErr, errors.Wrap(err, "failed to parse instruction error")
		}
		txErr.instruction = ie
		return txErr, nil
	default:
		return nil, errors.Errorf("unhandled error type %T", raw)
	}
}

func parseInstructionError(v any) (*InstructionError, error) {
	tuple, ok := v.([]any)
	if !ok || len(tuple) != 2 {
		return nil, errors.Errorf("expected [index, error] tuple, got %v", v)
	}

	index, err := parseJSONNumber(tuple[0])
	if err != nil {
		return nil, err
	}

	ie := &InstructionError{Index: index}
	switch t := tuple[1].(type) {
	case string:
		ie.Err = errors.New(t)
	case map[string]any:
		key, value, ok := singleEntry(t)
		if !ok {
			return nil, errors.Errorf("expected one entry in instruction error, got %d", len(t))
		}
		if key != string(InstructionErrorCustom) {
			ie.Err = errors.New(key)
			break
		}

		code, err := parseJSONNumber(value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid custom error code")
		}
		ie.Err = CustomError(code)
	default:
		return nil, errors.Errorf("unhandled instruction error %v", t)
	}

	return ie, nil
}

func singleEntry(m map[string]any) (string, any, bool) {
	if len(m) != 1 {
		return "", nil, false
	}
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

// IsTransactionError reports whether err, or anything it wraps, is an
// on-chain rejection.
func IsTransactionError(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr)
}

// GetCustomError extracts the program specific error code from err, if the
// rejection was caused by one.
func GetCustomError(err error) (CustomError, bool) {
	var txErr *TransactionError
	if !errors.As(err, &txErr) || txErr.instruction == nil {
		return 0, false
	}

	ce := txErr.instruction.CustomError()
	if ce == nil {
		return 0, false
	}
	return *ce, true
}

// parseJSONNumber accepts the forms a number takes depending on how the
// response was decoded.
func parseJSONNumber(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), errors.Wrapf(err, "non integer value %v", v)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return int(i), errors.Wrapf(err, "non numeric value %v", v)
	default:
		return 0, errors.Errorf("non numeric value %v", v)
	}
}
