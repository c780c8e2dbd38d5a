package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey is the string key of a ledger-level transaction error.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse            TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountNotFound         TransactionErrorKey = "AccountNotFound"
	TransactionErrorProgramAccountNotFound  TransactionErrorKey = "ProgramAccountNotFound"
	TransactionErrorInsufficientFundsForFee TransactionErrorKey = "InsufficientFundsForFee"
	TransactionErrorDuplicateSignature      TransactionErrorKey = "DuplicateSignature"
	TransactionErrorAlreadyProcessed        TransactionErrorKey = "AlreadyProcessed"
	TransactionErrorBlockhashNotFound       TransactionErrorKey = "BlockhashNotFound"
	TransactionErrorInstructionError        TransactionErrorKey = "InstructionError"
	TransactionErrorSignatureFailure        TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure         TransactionErrorKey = "SanitizeFailure"
)

// InstructionErrorKey is the string key of an instruction error.
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
	InstructionErrorNotEnoughAccountKeys      InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorMissingAccount            InstructionErrorKey = "MissingAccount"
	InstructionErrorCustom                    InstructionErrorKey = "Custom"
)

// CustomError is the numeric error code returned by a program.
type CustomError uint32

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", uint32(c))
}

// InstructionError identifies the failing instruction of a rejected
// transaction and what went wrong in it.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", i.Index, i.Err)
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	if i.Err == nil {
		return ""
	}
	if _, ok := i.Err.(CustomError); ok {
		return InstructionErrorCustom
	}
	return InstructionErrorKey(i.Err.Error())
}

// CustomError returns the program error code, if the instruction failed with
// one.
func (i InstructionError) CustomError() *CustomError {
	ce, ok := i.Err.(CustomError)
	if ok {
		return &ce
	}
	return nil
}

func (i InstructionError) raw() interface{} {
	if ce, ok := i.Err.(CustomError); ok {
		return []interface{}{i.Index, map[string]interface{}{string(InstructionErrorCustom): uint32(ce)}}
	}
	return []interface{}{i.Index, i.Err.Error()}
}

// TransactionError is the reason the ledger rejected a transaction.
type TransactionError struct {
	key              TransactionErrorKey
	instructionError *InstructionError
	raw              interface{}
}

func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{
		key: key,
		raw: string(key),
	}
}

func NewInstructionError(index int, err error) *TransactionError {
	ie := &InstructionError{Index: index, Err: err}
	return &TransactionError{
		key:              TransactionErrorInstructionError,
		instructionError: ie,
		raw: map[string]interface{}{
			string(TransactionErrorInstructionError): ie.raw(),
		},
	}
}

// ParseRPCError extracts the transaction error carried in the data of a
// failed sendTransaction call, which is where preflight failures end up.
func ParseRPCError(err *jsonrpc.RPCError) (*TransactionError, error) {
	if err == nil {
		return nil, nil
	}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return nil, errors.New("expected map type")
	}

	if txErr, ok := data["err"]; ok && txErr != nil {
		return ParseTransactionError(txErr)
	}

	return nil, nil
}

// ParseTransactionError parses the JSON "err" value returned by the RPC
// methods that report transaction results.
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	if raw == nil {
		return nil, nil
	}

	switch t := raw.(type) {
	case string:
		return &TransactionError{key: TransactionErrorKey(t), raw: raw}, nil
	case map[string]interface{}:
		if len(t) != 1 {
			return &TransactionError{key: "Unknown", raw: raw}, errors.Errorf("invalid transaction error size: %d", len(t))
		}

		k, v := singleEntry(t)
		if k != string(TransactionErrorInstructionError) {
			return &TransactionError{key: TransactionErrorKey(k), raw: raw}, nil
		}

		ie, err := parseInstructionError(v)
		if err != nil {
			return &TransactionError{key: "Unknown", raw: raw}, errors.Wrap(err, "failed to parse instruction error")
		}

		return &TransactionError{
			key:              TransactionErrorInstructionError,
			instructionError: &ie,
			raw:              raw,
		}, nil
	default:
		return nil, errors.Errorf("unhandled transaction error type %T", raw)
	}
}

func parseInstructionError(v interface{}) (e InstructionError, err error) {
	values, ok := v.([]interface{})
	if !ok {
		return e, errors.New("unexpected instruction error format")
	}
	if len(values) != 2 {
		return e, errors.Errorf("invalid InstructionError tuple size: %d", len(values))
	}

	if e.Index, err = parseJSONNumber(values[0]); err != nil {
		return e, err
	}

	switch t := values[1].(type) {
	case string:
		e.Err = errors.New(t)
	case map[string]interface{}:
		if len(t) != 1 {
			return e, errors.Errorf("invalid instruction error size: %d", len(t))
		}

		k, v := singleEntry(t)
		if k != string(InstructionErrorCustom) {
			e.Err = errors.New(k)
			break
		}

		code, err := parseJSONNumber(v)
		if err != nil {
			return e, errors.Wrap(err, "invalid custom error code")
		}
		e.Err = CustomError(code)
	default:
		return e, errors.Errorf("unhandled instruction error type %T", t)
	}

	return e, nil
}

func (t TransactionError) Error() string {
	if t.instructionError != nil {
		return t.instructionError.Error()
	}
	return string(t.key)
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instructionError
}

// JSONString renders the error the way the RPC reports it.
func (t TransactionError) JSONString() (string, error) {
	b, err := json.Marshal(t.raw)
	return string(b), err
}

func singleEntry(m map[string]interface{}) (k string, v interface{}) {
	for k, v = range m {
	}
	return k, v
}

func parseJSONNumber(v interface{}) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.Errorf("non int64 value: %v", v)
		}
		return int(n), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, errors.Errorf("non numeric value: %v", v)
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	}

	return 0, errors.Errorf("non numeric value: %v", v)
}
