package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidPublicKey      = errors.New("invalid public key")
	ErrNoViableBumpSeed      = errors.New("unable to find a viable program address bump seed")
)

// PublicKeyFromBase58 decodes a base58 address and checks its length.
func PublicKeyFromBase58(s string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base58 address %q", s)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidPublicKey, "address %q decodes to %d bytes", s, len(raw))
	}
	return raw, nil
}

// MustPublicKeyFromBase58 is PublicKeyFromBase58 for well-known constants.
func MustPublicKeyFromBase58(s string) ed25519.PublicKey {
	pub, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pub
}

// CreateProgramAddress derives an address for program from seeds. Program
// addresses must not lie on the ed25519 curve, so a hash that decodes to a
// valid point is rejected with ErrInvalidPublicKey.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}
		h.Write(s)
	}
	h.Write(program)
	h.Write([]byte(pdaMarker))

	var candidate [32]byte
	copy(candidate[:], h.Sum(nil))

	// The x/crypto edwards25519 point type is internal, so the curve check
	// goes through the jdgcs fork.
	var point edwards25519.ExtendedGroupElement
	if point.FromBytes(&candidate) {
		return nil, ErrInvalidPublicKey
	}

	return candidate[:], nil
}

// FindProgramAddressAndBump searches bump seeds from 255 downwards and returns
// the first off-curve address together with its bump.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	for bump := math.MaxUint8; bump > 0; bump-- {
		withBump := append(append([][]byte{}, seeds...), []byte{uint8(bump)})

		pub, err := CreateProgramAddress(program, withBump...)
		switch err {
		case nil:
			return pub, uint8(bump), nil
		case ErrInvalidPublicKey:
			continue
		default:
			return nil, 0, err
		}
	}

	return nil, 0, ErrNoViableBumpSeed
}

// FindProgramAddress is FindProgramAddressAndBump without the bump.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}
