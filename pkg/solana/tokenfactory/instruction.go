package tokenfactory

import (
	"fmt"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

var (
	ErrMalformedPayload = errors.New("malformed instruction payload")
	ErrTrailingBytes    = errors.New("trailing bytes in instruction payload")
)

// InstructionKind is the leading discriminant byte of an encoded
// instruction.
type InstructionKind uint8

const (
	KindCreateToken InstructionKind = iota
	KindMint
)

func (k InstructionKind) String() string {
	switch k {
	case KindCreateToken:
		return "CreateToken"
	case KindMint:
		return "Mint"
	}
	return fmt.Sprintf("InstructionKind(%d)", uint8(k))
}

// Instruction is one of CreateToken or Mint.
type Instruction interface {
	Kind() InstructionKind

	isInstruction()
}

// CreateToken initializes a new mint with the given number of decimals.
type CreateToken struct {
	Decimals uint8
}

func (CreateToken) Kind() InstructionKind { return KindCreateToken }
func (CreateToken) isInstruction()        {}

// Mint issues Amount base units of the mint into the owner's associated
// token account, creating the account if needed.
type Mint struct {
	Amount uint64
}

func (Mint) Kind() InstructionKind { return KindMint }
func (Mint) isInstruction()        {}

// fieldSizes holds the encoded size of each variant's fields, excluding the
// discriminant.
var fieldSizes = map[InstructionKind]int{
	KindCreateToken: 1,
	KindMint:        8,
}

// Size returns the full encoded size, discriminant included, of an
// instruction of the given kind.
func Size(kind InstructionKind) (int, error) {
	n, ok := fieldSizes[kind]
	if !ok {
		return 0, ErrUnknownInstruction
	}
	return 1 + n, nil
}

// Encode returns the wire payload of ix: the discriminant followed by the
// variant's fields in Borsh encoding.
func Encode(ix Instruction) ([]byte, error) {
	var kind InstructionKind
	var fields interface{}

	switch v := ix.(type) {
	case CreateToken:
		kind, fields = KindCreateToken, v
	case *CreateToken:
		if v != nil {
			kind, fields = KindCreateToken, *v
		}
	case Mint:
		kind, fields = KindMint, v
	case *Mint:
		if v != nil {
			kind, fields = KindMint, *v
		}
	}
	if fields == nil {
		return nil, errors.Wrap(ErrMalformedPayload, "no instruction")
	}

	body, err := borsh.Serialize(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize %s", kind)
	}
	if len(body) != fieldSizes[kind] {
		return nil, errors.Errorf("unexpected %s field size %d", kind, len(body))
	}

	return append([]byte{byte(kind)}, body...), nil
}

// Decode parses a wire payload produced by Encode. The payload must contain
// exactly one instruction.
func Decode(b []byte) (Instruction, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrMalformedPayload, "empty payload")
	}

	kind := InstructionKind(b[0])
	size, ok := fieldSizes[kind]
	if !ok {
		return nil, errors.Wrapf(ErrMalformedPayload, "unknown discriminant %d", b[0])
	}

	body := b[1:]
	if len(body) < size {
		return nil, errors.Wrapf(ErrMalformedPayload, "%s needs %d bytes, got %d", kind, size, len(body))
	}
	if len(body) > size {
		return nil, errors.Wrapf(ErrTrailingBytes, "%d bytes after %s", len(body)-size, kind)
	}

	switch kind {
	case KindCreateToken:
		var v CreateToken
		if err := borsh.Deserialize(&v, body); err != nil {
			return nil, errors.Wrap(ErrMalformedPayload, err.Error())
		}
		return v, nil
	default:
		var v Mint
		if err := borsh.Deserialize(&v, body); err != nil {
			return nil, errors.Wrap(ErrMalformedPayload, err.Error())
		}
		return v, nil
	}
}
