// Package binary reads and writes the fixed little-endian layouts of program
// account state.
//
// Every helper takes the slice positioned at the field and advances offset by
// the field's full width, so a caller walks a layout with
// Put*(b[offset:], ..., &offset). Callers size buffers up front and none of
// the helpers check bounds.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

// OptionTagSize is the width of a COption tag. A tag of 1 means the value
// that follows it is present.
const OptionTagSize = 4

func PutKey32(dst []byte, src ed25519.PublicKey, offset *int) {
	copy(dst[:ed25519.PublicKeySize], src)
	*offset += ed25519.PublicKeySize
}

// PutOptionalKey32 writes src behind a COption tag. An empty src leaves the
// tag and the key zeroed.
func PutOptionalKey32(dst []byte, src ed25519.PublicKey, offset *int) {
	if len(src) > 0 {
		dst[0] = 1
		copy(dst[OptionTagSize:OptionTagSize+ed25519.PublicKeySize], src)
	}
	*offset += OptionTagSize + ed25519.PublicKeySize
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func PutOptionalUint64(dst []byte, v *uint64, offset *int) {
	if v != nil {
		dst[0] = 1
		binary.LittleEndian.PutUint64(dst[OptionTagSize:], *v)
	}
	*offset += OptionTagSize + 8
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset++
}

func PutBool(dst []byte, v bool, offset *int) {
	var b uint8
	if v {
		b = 1
	}
	PutUint8(dst, b, offset)
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(*dst, src)
	*offset += ed25519.PublicKeySize
}

// GetOptionalKey32 reads a key behind a COption tag, leaving dst nil when the
// tag is unset.
func GetOptionalKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = nil
	if src[0] == 1 {
		*dst = make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(*dst, src[OptionTagSize:])
	}
	*offset += OptionTagSize + ed25519.PublicKeySize
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func GetOptionalUint64(src []byte, dst **uint64, offset *int) {
	*dst = nil
	if src[0] == 1 {
		val := binary.LittleEndian.Uint64(src[OptionTagSize:])
		*dst = &val
	}
	*offset += OptionTagSize + 8
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[0]
	*offset++
}

func GetBool(src []byte, dst *bool, offset *int) {
	*dst = src[0] == 1
	*offset++
}
