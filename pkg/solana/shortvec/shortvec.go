// Package shortvec implements the compact-u16 length prefix used by legacy
// transaction and message encodings.
//
// Reference: https://docs.solana.com/developing/programming-model/transactions#compact-array-format
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxLen is the largest length a compact-u16 prefix can carry.
const MaxLen = math.MaxUint16

// maxEncodedSize is the widest a valid prefix gets on the wire.
const maxEncodedSize = 3

// ErrLenOutOfRange is returned when a length is negative or above MaxLen.
var ErrLenOutOfRange = errors.New("shortvec length out of range")

// EncodeLen writes length as a compact-u16: 7 bits per byte, with the high
// bit set on every byte but the last. Nothing is written when length is out
// of range.
func EncodeLen(w io.Writer, length int) (n int, err error) {
	if length < 0 || length > MaxLen {
		return 0, errors.Wrapf(ErrLenOutOfRange, "%d (max %d)", length, MaxLen)
	}

	buf := make([]byte, 0, maxEncodedSize)
	for {
		v := byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			buf = append(buf, v)
			break
		}
		buf = append(buf, v|0x80)
	}

	return w.Write(buf)
}

// DecodeLen reads a compact-u16 length from r. Prefixes wider than three bytes
// are rejected without reading past the third byte.
func DecodeLen(r io.Reader) (int, error) {
	var val int
	b := make([]byte, 1)

	for i := 0; i < maxEncodedSize; i++ {
		if _, err := io.ReadFull(r, b); err != nil {
			return 0, err
		}

		val |= int(b[0]&0x7f) << (7 * i)
		if b[0]&0x80 == 0 {
			if val > MaxLen {
				return 0, errors.Wrapf(ErrLenOutOfRange, "decoded %d", val)
			}
			return val, nil
		}
	}

	return 0, errors.Errorf("shortvec prefix longer than %d bytes", maxEncodedSize)
}
