package memo

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

// MaxLength is the longest memo accepted, in bytes. Longer memos run the
// program out of compute.
const MaxLength = 566

var ErrInvalidMemo = errors.New("memo must be valid utf-8 of at most 566 bytes")

// ProgramKey is the address of the SPL memo program (v2).
var ProgramKey = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// Validate reports whether the memo program would accept data.
func Validate(data []byte) error {
	if len(data) > MaxLength || !utf8.Valid(data) {
		return ErrInvalidMemo
	}
	return nil
}

// Instruction returns a memo instruction carrying text. No accounts are
// required to sign it.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/memo/program/src/processor.rs
func Instruction(text string) (solana.Instruction, error) {
	if err := Validate([]byte(text)); err != nil {
		return solana.Instruction{}, err
	}
	return solana.NewInstruction(ProgramKey, []byte(text)), nil
}

// DecompileMemo returns the memo text of the instruction at index.
func DecompileMemo(m solana.Message, index int) (string, error) {
	if index >= len(m.Instructions) {
		return "", errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey) {
		return "", solana.ErrIncorrectProgram
	}
	if err := Validate(i.Data); err != nil {
		return "", err
	}

	return string(i.Data), nil
}
