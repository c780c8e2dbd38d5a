package compute_budget

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
)

// ComputeBudget111111111111111111111111111111
var ProgramKey = ed25519.PublicKey{3, 6, 70, 111, 229, 33, 23, 50, 255, 236, 173, 186, 114, 195, 155, 231, 188, 140, 229, 187, 197, 247, 18, 107, 44, 67, 155, 58, 64, 0, 0, 0}

const (
	commandRequestUnits uint8 = iota
	commandRequestHeapFrame
	commandSetComputeUnitLimit
	commandSetComputeUnitPrice
)

// SetComputeUnitPrice sets the priority fee, in micro-lamports per compute
// unit, of the transaction it is part of.
func SetComputeUnitPrice(microLamports uint64) solana.Instruction {
	data := make([]byte, 1+8)
	data[0] = commandSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)

	return solana.NewInstruction(ProgramKey, data)
}

// DecompileSetComputeUnitPrice returns the price set by the instruction at
// index.
func DecompileSetComputeUnitPrice(m solana.Message, index int) (uint64, error) {
	if index >= len(m.Instructions) {
		return 0, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(i.Data) != 9 || i.Data[0] != commandSetComputeUnitPrice {
		return 0, solana.ErrIncorrectInstruction
	}

	return binary.LittleEndian.Uint64(i.Data[1:]), nil
}
